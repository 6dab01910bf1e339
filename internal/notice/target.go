package notice

import (
	"errors"
	"fmt"
)

// TargetKind discriminates the audience variants for airdrops and targeted
// announcements.
type TargetKind string

const (
	TargetAll   TargetKind = "all"
	TargetIDs   TargetKind = "ids"
	TargetGroup TargetKind = "group"
)

var ErrInvalidTarget = errors.New("invalid target selector")

// TargetSelector is a tagged variant: All, a fixed ID set, or a named group.
// It is resolved to a concrete account set by an explicit resolver rather
// than dispatched dynamically.
type TargetSelector struct {
	Kind  TargetKind `json:"kind"`
	IDs   []int64    `json:"ids,omitempty"`
	Group string     `json:"group,omitempty"`
}

func SelectAll() TargetSelector {
	return TargetSelector{Kind: TargetAll}
}

func SelectIDs(ids ...int64) TargetSelector {
	return TargetSelector{Kind: TargetIDs, IDs: ids}
}

func SelectGroup(name string) TargetSelector {
	return TargetSelector{Kind: TargetGroup, Group: name}
}

// AccountResolver turns a selector into concrete account IDs.
type AccountResolver interface {
	ListIDs() ([]int64, error)
	ListIDsByGroup(group string) ([]int64, error)
}

// Resolve returns the concrete account set for a selector.
func Resolve(sel TargetSelector, r AccountResolver) ([]int64, error) {
	switch sel.Kind {
	case TargetAll:
		return r.ListIDs()
	case TargetIDs:
		if len(sel.IDs) == 0 {
			return nil, fmt.Errorf("%w: empty id set", ErrInvalidTarget)
		}
		return sel.IDs, nil
	case TargetGroup:
		if sel.Group == "" {
			return nil, fmt.Errorf("%w: empty group name", ErrInvalidTarget)
		}
		return r.ListIDsByGroup(sel.Group)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidTarget, sel.Kind)
	}
}
