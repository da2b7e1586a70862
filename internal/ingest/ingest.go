// Package ingest converts source documents to text and persists the interim copy.
package ingest

import (
	"context"
	"errors"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	localio "github.com/shpitdev/docdiff-reasoner/pkg/pipeline/io/local"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/redact"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/schema"
)

// SupportedExtensions lists the source formats the default converter handles.
var SupportedExtensions = []string{".pdf"}

// InterimExt is the extension of interim artifacts.
const InterimExt = ".md"

// Outcome is the result of ingesting one document. A failed conversion is reported
// here (Status failed, Err set) rather than as a returned error.
type Outcome struct {
	Source      localio.Source
	Text        string
	InterimPath string
	Status      schema.DocumentStatus
	Err         error
}

// OK reports whether the document produced text.
func (o Outcome) OK() bool {
	return o.Status == schema.DocumentOK
}

// ManifestEntry renders the outcome for the run manifest.
func (o Outcome) ManifestEntry() schema.Document {
	d := schema.Document{
		Name:        o.Source.Name,
		Stem:        o.Source.Stem,
		InterimPath: o.InterimPath,
		Characters:  len([]rune(o.Text)),
		Status:      o.Status,
	}
	if o.Err != nil {
		d.Error = redact.Secrets(o.Err.Error())
	}
	return d
}

// Ingester converts documents and writes their interim artifacts.
type Ingester struct {
	conv       core.Converter
	interimDir string
	logger     *zap.Logger
}

// New builds an Ingester. A nil logger discards output.
func New(conv core.Converter, interimDir string, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{conv: conv, interimDir: interimDir, logger: logger}
}

// InterimPath is where the text for src is written.
func (i *Ingester) InterimPath(src localio.Source) string {
	return filepath.Join(i.interimDir, src.Stem+InterimExt)
}

// Ingest converts src and writes <interim-dir>/<stem>.md.
//
// Conversion failures are soft: they are logged and returned in the Outcome with a
// nil error. Failing to write the interim file is hard and returned as an error.
func (i *Ingester) Ingest(ctx context.Context, src localio.Source) (Outcome, error) {
	log := i.logger.With(zap.String("doc", src.Stem))
	log.Info("parsing source", zap.String("path", src.Path))

	text, err := i.conv.Convert(ctx, src.Path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return Outcome{}, err
		}
		convErr := &core.ConversionError{Stem: src.Stem, Err: err}
		log.Warn("failed to parse source", zap.String("error", redact.Secrets(err.Error())))
		return Outcome{Source: src, Status: schema.DocumentFailed, Err: convErr}, nil
	}

	path := i.InterimPath(src)
	if err := localio.WriteText(path, text); err != nil {
		log.Error("failed to write interim artifact", zap.String("error", redact.Secrets(err.Error())))
		return Outcome{}, err
	}
	log.Debug("wrote interim artifact", zap.String("path", path), zap.Int("bytes", len(text)))

	return Outcome{
		Source:      src,
		Text:        text,
		InterimPath: path,
		Status:      schema.DocumentOK,
	}, nil
}
