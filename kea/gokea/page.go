package gokea

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/lovi-cloud/keagw/kea"
)

// pageLimit bounds one lease4-get-page round trip.
const pageLimit = 1000

// startCursor is the lowest possible address; the backend returns leases
// strictly after the cursor, so each page advances to the last address of
// the previous one.
const startCursor = "0.0.0.0"

var errPagingUnsupported = errors.New("lease4-get-page not supported")

// pageLeases walks one subnet's lease set in bounded pages. The walk stops
// on an empty page, on a short page, or when the last entry carries no
// address (a guard against malformed data looping forever). An unsupported
// signal propagates so the caller can try its next tier; any other error
// ends the walk early with the pages collected so far.
func (g *GoKea) pageLeases(ctx context.Context, subnetID int) ([]kea.Lease, error) {
	var all []kea.Lease
	from := startCursor

	for {
		res, err := g.tr.send(ctx, "lease4-get-page", map[string]interface{}{
			"subnets": []int{subnetID},
			"from":    from,
			"limit":   pageLimit,
		})
		if err != nil {
			g.logger.Error("error fetching lease page",
				zap.Int("subnet_id", subnetID), zap.String("from", from), zap.Error(err))
			break
		}
		if res.Unsupported {
			return nil, errPagingUnsupported
		}

		page, err := parseLeases(res.Arguments)
		if err != nil {
			g.logger.Error("malformed lease page",
				zap.Int("subnet_id", subnetID), zap.Error(err))
			break
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		if len(page) < pageLimit {
			break
		}

		last := page[len(page)-1].IPAddress
		if last == "" {
			break
		}
		from = last
	}

	g.logger.Debug("fetched leases for subnet",
		zap.Int("subnet_id", subnetID), zap.Int("count", len(all)))
	return all, nil
}
