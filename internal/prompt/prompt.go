// Package prompt owns the fixed instruction text and the assembly of the user prompt
// from ingested documents.
package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Separator precedes every ingested document in the assembled user prompt.
const Separator = "\n\n\nA VERSION OF THE FILE -- \n\n\n"

//go:embed prompts/reasoning.txt
var defaultInstruction string

// ErrInstructionUnreadable is returned when an instruction override cannot be loaded.
var ErrInstructionUnreadable = errors.New("instruction template unreadable")

// Instruction is the developer prompt sent with every request. It is loaded once
// per process and never mutated.
type Instruction struct {
	text   string
	source string
}

// DefaultInstruction returns the embedded instruction.
func DefaultInstruction() *Instruction {
	return &Instruction{text: defaultInstruction, source: "embedded"}
}

// LoadInstruction reads an instruction override from path. An empty path selects
// the embedded default.
func LoadInstruction(path string) (*Instruction, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultInstruction(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInstructionUnreadable, err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return nil, fmt.Errorf("%w: %s is empty", ErrInstructionUnreadable, path)
	}
	return &Instruction{text: string(b), source: path}, nil
}

// NewInstruction wraps literal text (tests, library callers).
func NewInstruction(text string) *Instruction {
	return &Instruction{text: text, source: "inline"}
}

func (i *Instruction) Text() string {
	if i == nil {
		return ""
	}
	return i.text
}

// Source names where the text came from: "embedded", "inline" or a file path.
func (i *Instruction) Source() string {
	if i == nil {
		return ""
	}
	return i.source
}

// Assembler folds ingested document texts into one user prompt, in the order they
// are added.
type Assembler struct {
	b     strings.Builder
	count int
}

// Add appends one document's text, preceded by Separator.
func (a *Assembler) Add(text string) {
	a.b.WriteString(Separator)
	a.b.WriteString(text)
	a.count++
}

// Len is the number of documents added so far.
func (a *Assembler) Len() int {
	return a.count
}

// String returns the assembled prompt.
func (a *Assembler) String() string {
	return a.b.String()
}

// Assemble is the one-shot form of Assembler.
func Assemble(texts ...string) string {
	var a Assembler
	for _, t := range texts {
		a.Add(t)
	}
	return a.String()
}
