package domain

import "sort"

// Merge combines the locally stored order list with a freshly fetched
// remote list into one authoritative list.
//
// Local orders seed the result, then each remote order is folded in:
//
//   - no local counterpart: the remote order is adopted as-is
//   - local status is terminal: status and payment status stay local,
//     every other field (items, totals, meta) refreshes from remote
//   - local payment is paid: the remote copy wins but its payment status
//     is forced to paid, so a stale read never shows pending again
//   - otherwise: the remote copy wins outright
//
// Orders present on only one side survive, so the result keys are the
// union of both inputs. Feeding the output back in as the local side
// yields the same result.
func Merge(local, remote []Order) []Order {
	merged := make(map[string]Order, len(local)+len(remote))
	for _, o := range local {
		if o.ID == "" {
			continue
		}
		merged[o.ID] = o
	}

	for _, r := range remote {
		if r.ID == "" {
			continue
		}
		l, ok := merged[r.ID]
		if !ok {
			merged[r.ID] = r
			continue
		}
		if IsTerminal(l.Status) {
			// Locally reached terminal state is frozen; a slightly stale
			// remote read must not roll it back.
			r.Status = l.Status
			r.PaymentStatus = l.PaymentStatus
			merged[r.ID] = r
			continue
		}
		if l.PaymentStatus == PaymentPaid {
			r.PaymentStatus = PaymentPaid
		}
		merged[r.ID] = r
	}

	out := make([]Order, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	// Newest first, id tie-break, so the result is independent of map
	// iteration order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
