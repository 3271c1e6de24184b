package pathfind

import (
	"runtime"
	"sync"

	"github.com/cwbudde/bouncepath/internal/path"
)

// Evaluation is the outcome of one candidate path
type Evaluation struct {
	Action float64
	Err    error
}

// EvaluateConcurrently computes the action of independent paths on at most
// workers goroutines. Results are in input order. The evaluator must be safe
// for concurrent use.
func EvaluateConcurrently(evaluator ActionEvaluator, paths []path.TunnelPath, workers int) []Evaluation {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]Evaluation, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(paths)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				action, err := evaluator.BounceAction(paths[i])
				results[i] = Evaluation{Action: action, Err: err}
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}
