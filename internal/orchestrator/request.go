package orchestrator

import (
	"git.home.luguber.info/inful/bookbinder/internal/errors"
)

// Request is one parsed command-line invocation: which targets to act on
// and which action to take.
type Request struct {
	Targets []Target
	Clean   bool
	Clobber bool
	Watch   bool
}

// ParseRequest interprets the target words of an invocation. "all" (and an
// empty list) expands to every build target. "clean" and "clobber" act only
// on the targets named alongside them: "clean pdf" cleans the pdf artifact,
// it does not clean and then build.
func ParseRequest(names []string) (Request, error) {
	req := Request{}
	var named []Target

	for _, name := range names {
		switch name {
		case "html", "pdf", "epub", "docx", "combined":
			named = append(named, Target(name))
		case "all":
			named = append(named, BuildOrder...)
		case "clean":
			req.Clean = true
		case "clobber":
			req.Clobber = true
		case "auto":
			req.Watch = true
		default:
			return Request{}, errors.Newf(errors.CategoryConfig, "unknown target %q", name)
		}
	}

	if len(named) == 0 {
		named = append(named, BuildOrder...)
	}
	req.Targets = dedupe(named)
	return req, nil
}

func dedupe(targets []Target) []Target {
	seen := map[Target]bool{}
	out := targets[:0]
	for _, t := range targets {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
