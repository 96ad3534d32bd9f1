package importer

import (
	"context"

	"listimport/internal/listing"
	"listimport/internal/mapping"
)

// UpsertStatus is the single outcome recorded for each row.
type UpsertStatus string

const (
	// StatusSuccess marks a newly created listing.
	StatusSuccess UpsertStatus = "success"
	// StatusUpdated marks an existing listing refreshed in place.
	StatusUpdated UpsertStatus = "updated"
	// StatusSkipped marks a row intentionally not imported.
	StatusSkipped UpsertStatus = "skipped"
	// StatusFailed marks a persistence error.
	StatusFailed UpsertStatus = "failed"
)

const gallerySlot = "gallery"

// MediaFetcher is the media-import collaborator. Failures degrade to a
// dropped attachment, never a failed row.
type MediaFetcher interface {
	FetchAndAttach(ctx context.Context, url string) (listing.Attachment, error)
}

// Upserter decides create vs. update by fingerprint and persists through
// the record store.
type Upserter struct {
	Records listing.RecordStore
	Media   MediaFetcher
}

// Upsert persists one mapped record. Test mode walks the same path but
// returns before any write. Every update clears the previously attached
// gallery media first, so repeated imports do not accumulate copies and a
// mapping that dropped its gallery column drops the old attachments too.
func (u *Upserter) Upsert(ctx context.Context, rec *listing.Record, mediaURLs []string, testMode bool, log mapping.Logger) (UpsertStatus, int64, error) {
	if testMode {
		return StatusSuccess, 0, nil
	}

	id, found, err := u.Records.FindByFingerprint(ctx, rec.Fingerprint, rec.ListingType)
	if err != nil {
		return StatusFailed, 0, err
	}
	if found {
		if err := u.Records.Update(ctx, id, rec); err != nil {
			return StatusFailed, id, err
		}
		if err := u.Records.ClearMedia(ctx, id, gallerySlot); err != nil && log != nil {
			log.Warnf("could not clear gallery for listing %d: %v", id, err)
		}
		u.attach(ctx, id, mediaURLs, log)
		return StatusUpdated, id, nil
	}

	id, err = u.Records.Create(ctx, rec)
	if err != nil {
		return StatusFailed, 0, err
	}
	u.attach(ctx, id, mediaURLs, log)
	return StatusSuccess, id, nil
}

func (u *Upserter) attach(ctx context.Context, id int64, urls []string, log mapping.Logger) {
	if u.Media == nil {
		return
	}
	for _, url := range urls {
		att, err := u.Media.FetchAndAttach(ctx, url)
		if err != nil {
			if log != nil {
				log.Warnf("dropping image %s: %v", url, err)
			}
			continue
		}
		if err := u.Records.AttachMedia(ctx, id, gallerySlot, att); err != nil && log != nil {
			log.Warnf("could not attach image %s: %v", url, err)
		}
	}
}
