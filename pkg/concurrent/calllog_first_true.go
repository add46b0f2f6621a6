package concurrent

import "context"

// Check is one cancellable boolean check. Implementations must be pure reads:
// a cancelled check may not leave any side effect behind.
type Check func(ctx context.Context) (bool, error)

type checkResult struct {
	value bool
	err   error
}

// AnyTrue runs every check concurrently and resolves on the first completed
// result that is true (true, nil) or an error (false, err). The remaining checks
// are cancelled. When all checks complete false it returns (false, nil).
func AnyTrue(ctx context.Context, checks ...Check) (bool, error) {
	if len(checks) == 0 {
		return false, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan checkResult, len(checks))
	for _, check := range checks {
		go func(check Check) {
			value, err := check(ctx)
			results <- checkResult{value: value, err: err}
		}(check)
	}

	for range checks {
		select {
		case r := <-results:
			if r.err != nil {
				return false, r.err
			}
			if r.value {
				return true, nil
			}
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, nil
}
