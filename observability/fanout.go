package observability

import "context"

type fanout []Observer

func (f fanout) OnEvent(ctx context.Context, event Event) {
	for _, obs := range f {
		obs.OnEvent(ctx, event)
	}
}

// Fanout returns an observer forwarding each event to every observer in
// order. Nil and Discard entries are skipped and nested fanouts are
// flattened; with nothing left it returns Discard, and with one observer it
// returns that observer.
func Fanout(observers ...Observer) Observer {
	var out fanout
	for _, obs := range observers {
		switch o := obs.(type) {
		case nil, discard:
		case fanout:
			out = append(out, o...)
		default:
			out = append(out, obs)
		}
	}

	switch len(out) {
	case 0:
		return Discard
	case 1:
		return out[0]
	default:
		return out
	}
}
