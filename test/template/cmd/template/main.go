package main

import (
	"context"
	"fmt"

	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/core"
	"github.com/shpitdev/docdiff-reasoner/pkg/pipeline/retry"
	"github.com/shpitdev/docdiff-reasoner/test/template/backend"
)

func main() {
	req := core.Request{
		Instruction: "compare",
		User:        "\n\n\nA VERSION OF THE FILE -- \n\n\nTerm: 12 months\n\n\nA VERSION OF THE FILE -- \n\n\nTerm: 24 months",
		Model:       "outline",
	}
	out, err := backend.WithRetry(context.Background(), backend.Outline{}, req, retry.DefaultPolicy(), retry.Sleep)
	if err != nil {
		panic(err)
	}
	fmt.Print(out)
}
