package orchestrator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/planmux/planmux/internal/agent"
)

var (
	stepTokenPattern = regexp.MustCompile(`\$step\.(\d+)`)
	ctxTokenPattern  = regexp.MustCompile(`\$ctx\.([A-Za-z0-9_-]+)`)
)

// stepRefs returns the step indices an argument map references through
// $step.N tokens. These become implicit dependencies.
func stepRefs(args map[string]string) []int {
	var refs []int
	seen := map[int]bool{}
	for _, v := range args {
		for _, m := range stepTokenPattern.FindAllStringSubmatch(v, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil || seen[n] {
				continue
			}
			seen[n] = true
			refs = append(refs, n)
		}
	}
	return refs
}

// resolveArgs expands substitution tokens in a step's arguments. $query and
// $file come from the request, $ctx.KEY from the request context map, and
// $step.N from the text output of an already completed step. An unknown
// context key or a reference to a failed step is an error; the step must
// not run with a half-resolved argument.
func resolveArgs(req Request, args map[string]string, completed map[int]agent.Result) (map[string]string, error) {
	resolved := make(map[string]string, len(args))
	for name, value := range args {
		v := strings.ReplaceAll(value, "$query", req.Query)
		v = strings.ReplaceAll(v, "$file", req.FilePath)

		var resolveErr error
		v = ctxTokenPattern.ReplaceAllStringFunc(v, func(token string) string {
			key := ctxTokenPattern.FindStringSubmatch(token)[1]
			val, ok := req.Context[key]
			if !ok {
				resolveErr = fmt.Errorf("argument %q references unknown context key %q", name, key)
			}
			return val
		})
		if resolveErr != nil {
			return nil, resolveErr
		}

		v = stepTokenPattern.ReplaceAllStringFunc(v, func(token string) string {
			n, _ := strconv.Atoi(stepTokenPattern.FindStringSubmatch(token)[1])
			result, ok := completed[n]
			if !ok {
				resolveErr = fmt.Errorf("argument %q references step %d which has not completed", name, n)
				return ""
			}
			if result.IsError {
				resolveErr = fmt.Errorf("argument %q references failed step %d", name, n)
				return ""
			}
			return result.Text()
		})
		if resolveErr != nil {
			return nil, resolveErr
		}

		resolved[name] = v
	}
	return resolved, nil
}
