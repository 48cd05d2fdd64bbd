// Command sieveplan prints the dimensions sieve would choose for a filter
// of a given capacity and false-positive rate.
//
//	sieveplan -n 10000 -p 0.00001
//	sieveplan -n 3000000000 -p 0.01 -remote
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"

	"github.com/jpl-au/sieve"
)

type plan struct {
	sieve.Params
	Strategy  string  `json:"strategy"`
	Remote    bool    `json:"remote,omitempty"`
	Estimated float64 `json:"estimated_error_rate"` // at capacity, after clamping
}

func main() {
	n := flag.Int("n", 0, "expected number of distinct values")
	p := flag.Float64("p", 0.01, "target false-positive rate, 0 < p < 1")
	strategy := flag.String("strategy", "murmur3", "hash strategy: accumulator, murmur3 or sha256")
	remote := flag.Bool("remote", false, "clamp the bit length to one remote key")
	flag.Parse()

	if err := run(os.Stdout, *n, *p, *strategy, *remote); err != nil {
		fmt.Fprintln(os.Stderr, "sieveplan:", err)
		os.Exit(1)
	}
}

func run(w io.Writer, n int, p float64, strategy string, remote bool) error {
	s, err := sieve.StrategyByName(strategy)
	if err != nil {
		return err
	}
	params, err := sieve.Plan(n, p)
	if err != nil {
		return err
	}
	if remote {
		params = params.Clamp(sieve.MaxKeyBits)
	}
	out, err := json.MarshalIndent(plan{
		Params:    params,
		Strategy:  fmt.Sprint(s),
		Remote:    remote,
		Estimated: params.EstimateFalsePositiveRate(n),
	}, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", out)
	return err
}
