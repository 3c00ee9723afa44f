package store

import (
	"encoding/json"
	"io"
	"os"
)

// Result is the serialized form of a solve, with gradients attached
// when the run computed them.
type Result struct {
	Model     string               `json:"model"`
	Method    string               `json:"method"`
	RTol      float64              `json:"rtol"`
	ATol      float64              `json:"atol"`
	Samples   int                  `json:"samples"`
	Times     []float64            `json:"times"`
	States    [][]float64          `json:"states"`
	Gradients map[string][]float64 `json:"gradients,omitempty"`
}

func ExportJSON(path string, res *Result) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return writeJSON(file, res)
}

func ExportJSONStdout(res *Result) error {
	return writeJSON(os.Stdout, res)
}

func writeJSON(w io.Writer, res *Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}
