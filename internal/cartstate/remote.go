package cartstate

import (
	"context"
	"fmt"
)

// Remote is the cart service the manager reconciles against.
type Remote interface {
	Fetch(ctx context.Context) ([]Line, error)
	Apply(ctx context.Context, mutation Mutation) error
}

// Observer receives snapshots and notices in commit order from a single
// goroutine. Implementations may call back into the Manager.
type Observer interface {
	CartChanged(Snapshot)
	CartNotice(Notice)
}

// ObserverFuncs adapts plain functions to Observer; nil funcs are skipped.
type ObserverFuncs struct {
	OnChange func(Snapshot)
	OnNotice func(Notice)
}

func (o ObserverFuncs) CartChanged(s Snapshot) {
	if o.OnChange != nil {
		o.OnChange(s)
	}
}

func (o ObserverFuncs) CartNotice(n Notice) {
	if o.OnNotice != nil {
		o.OnNotice(n)
	}
}

type NoticeKind string

const (
	NoticeNetworkFailure    NoticeKind = "network_failure"
	NoticeMalformedResponse NoticeKind = "malformed_response"
)

// Notice is a non-blocking warning about cart synchronisation.
type Notice struct {
	Kind       NoticeKind
	Operation  string
	Seq        uint64
	ProductID  ProductID
	RolledBack bool
	Err        error
}

func (n Notice) Message() string {
	switch n.Kind {
	case NoticeMalformedResponse:
		return "cart service returned an unreadable cart; showing last known cart"
	case NoticeNetworkFailure:
		if n.RolledBack {
			return fmt.Sprintf("could not save cart change (%s); change was undone", n.Operation)
		}
		return fmt.Sprintf("could not save cart change (%s); it will be reconciled on next refresh", n.Operation)
	}
	return "cart notice"
}
