package upstream

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an upstream failure.
type Kind int

const (
	// KindUpstream is any unexpected response or transport failure.
	KindUpstream Kind = iota
	// KindNotFound means the requested resource no longer exists.
	KindNotFound
	// KindOverload means the service asked clients to back off.
	KindOverload
	// KindTooManyRuns means the player has more runs than can be scored.
	KindTooManyRuns
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindOverload:
		return "overload"
	case KindTooManyRuns:
		return "too_many_runs"
	default:
		return "upstream"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrUpstream    = errors.New("upstream error")
	ErrNotFound    = errors.New("not found upstream")
	ErrOverload    = errors.New("upstream overloaded")
	ErrTooManyRuns = errors.New("too many runs")
)

// UnhandledMessage separates the label of a failed pass from its details.
const UnhandledMessage = "\nNot uploading data as some errors were caught during execution:\n"

// Error is a tagged upstream failure.
type Error struct {
	Kind   Kind
	Label  string
	Detail string
	// Status is the HTTP or service status that caused the error, if any.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Label
	}
	return e.Label + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return e.Kind == KindUpstream
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrOverload:
		return e.Kind == KindOverload
	case ErrTooManyRuns:
		return e.Kind == KindTooManyRuns
	}
	return false
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, label, detail string) *Error {
	return &Error{Kind: kind, Label: label, Detail: detail}
}

// Wrap builds an Upstream error around err.
func Wrap(err error, label string) *Error {
	return &Error{Kind: KindUpstream, Label: label, Detail: err.Error(), Err: err}
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsOverload reports whether err is an overload failure.
func IsOverload(err error) bool { return errors.Is(err, ErrOverload) }

// KindOf returns the kind of err, defaulting to KindUpstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}

// Aggregate folds the failures of one scoring pass into a single error.
// A lone failure keeps its label; several are listed once per distinct
// message with their occurrence count. It returns nil for no errors.
func Aggregate(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		label, detail := describe(errs[0])
		return &Error{Kind: KindUpstream, Label: label, Detail: UnhandledMessage + detail, Err: errs[0]}
	}

	counts := make(map[string]int)
	var order []string
	for _, err := range errs {
		label, detail := describe(err)
		line := "Error: " + label + "\n" + detail
		if counts[line] == 0 {
			order = append(order, line)
		}
		counts[line]++
	}
	// most frequent first, then first seen
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	var b strings.Builder
	for i, line := range order {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[x%d] %s", counts[line], line)
	}
	return &Error{
		Kind:   KindUpstream,
		Label:  "Multiple Unhandled Exceptions",
		Detail: UnhandledMessage + b.String(),
		Err:    errors.Join(errs...),
	}
}

func describe(err error) (label, detail string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Label, e.Detail
	}
	return "Unhandled exception in thread", err.Error()
}
