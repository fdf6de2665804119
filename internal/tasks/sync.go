package tasks

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
)

// runSync reconciles two playlists from one snapshot of each. Any error fails the job and every open item.
func (e *JobEngine) runSync(ctx context.Context, rec *jobRecord, spec SyncJob, auth models.Credentials) error {
	sourceToken, destToken, ok := e.resolveTokens(ctx, rec, auth)
	if !ok {
		return nil
	}

	rec.log(fetchingSourceLine(spec.Source.Name))
	source, err := e.readTracks(ctx, sourceToken, spec.Source.ID)
	if err != nil {
		return err
	}
	rec.log(sourceCountLine(len(source)))

	rec.log(fetchingDestLine(spec.Destination.Name))
	dest, err := e.readTracks(ctx, destToken, spec.Destination.ID)
	if err != nil {
		return err
	}
	rec.log(destCountLine(len(dest)))

	diff := Reconcile(source, dest)
	if spec.Mode == models.TwoWay {
		return e.syncTwoWay(ctx, rec, spec, diff, sourceToken, destToken)
	}
	return e.syncOneWay(ctx, rec, spec, diff, destToken)
}

func (e *JobEngine) syncOneWay(ctx context.Context, rec *jobRecord, spec SyncJob, diff Reconciliation, destToken string) error {
	target := NewTarget(e.api, destToken, spec.Destination.ID, e.opts.SavedTracksDelay)

	uris := writableURIs(rec, target, diff.ToDest)
	rec.start(0, len(uris))
	rec.log(oneWayAddLine(len(uris)))
	if err := e.addWithProgress(ctx, rec, target, 0, uris); err != nil {
		return err
	}

	switch {
	case !spec.RemoveMissing:
		rec.log(removalDisabledLine)
	case len(diff.ToRemoveFromDest) == 0:
		rec.log(nothingToRemoveLine)
	default:
		rec.log(oneWayRemoveLine(len(diff.ToRemoveFromDest)))
		if err := target.Remove(ctx, diff.ToRemoveFromDest); err != nil {
			return err
		}
		rec.log(removedLine(len(diff.ToRemoveFromDest)))
	}

	rec.advance(0, models.ItemCompleted)
	rec.log(oneWayDoneLine)
	rec.finish()
	return nil
}

func (e *JobEngine) syncTwoWay(ctx context.Context, rec *jobRecord, spec SyncJob, diff Reconciliation, sourceToken, destToken string) error {
	legs := []struct {
		target Target
		uris   []string
		line   func(n int) string
	}{
		{
			target: NewTarget(e.api, destToken, spec.Destination.ID, e.opts.SavedTracksDelay),
			uris:   diff.ToDest,
			line:   twoWayToDestLine,
		},
		{
			target: NewTarget(e.api, sourceToken, spec.Source.ID, e.opts.SavedTracksDelay),
			uris:   diff.ToSource,
			line:   twoWayToSourceLine,
		},
	}

	for idx, leg := range legs {
		uris := writableURIs(rec, leg.target, leg.uris)
		rec.start(idx, len(uris))
		rec.log(leg.line(len(uris)))
		if err := e.addWithProgress(ctx, rec, leg.target, idx, uris); err != nil {
			return err
		}
		rec.advance(idx, models.ItemCompleted)
	}

	rec.log(twoWayDoneLine)
	rec.finish()
	return nil
}
