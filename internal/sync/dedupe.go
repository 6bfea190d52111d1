package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/oneclouds/oneclouds/internal/catalog"
)

// DuplicateTier identifies which similarity signal grouped a set of files.
// Tiers are exclusive: a file claimed by a stronger tier never appears in a
// weaker one.
type DuplicateTier string

const (
	// TierContentHash groups on a provider-supplied content digest.
	TierContentHash DuplicateTier = "content_hash"
	// TierSizeHash groups on the md5(name_size_mime) fingerprint.
	TierSizeHash DuplicateTier = "size_hash"
	// TierNameSize groups on case-folded name plus exact size.
	TierNameSize DuplicateTier = "name_size"
)

// DuplicateGroup is one set of probable duplicates. Files are ordered by
// name, then by record id, so repeated detection over the same catalog
// produces identical output.
type DuplicateGroup struct {
	Key   string
	Tier  DuplicateTier
	Files []*catalog.FileRecord

	// TotalSize is the sum over all members; WastedSize is the total minus
	// one copy, i.e. what deleting all but one member reclaims.
	TotalSize  int64
	WastedSize int64
}

// DetectOptions filters which files enter duplicate detection.
type DetectOptions struct {
	// Mode restricts detection to accounts in one access mode. Empty means
	// all accounts.
	Mode catalog.AccessMode

	// MinSize excludes files smaller than this many bytes. Files with no
	// reported size are always excluded.
	MinSize int64
}

// DuplicateDetector finds probable duplicate files across all of a user's
// accounts in three exclusive tiers, strongest signal first.
type DuplicateDetector struct {
	store  DedupeStore
	logger *slog.Logger
}

func NewDuplicateDetector(store DedupeStore, logger *slog.Logger) *DuplicateDetector {
	if logger == nil {
		logger = slog.Default()
	}

	return &DuplicateDetector{store: store, logger: logger}
}

// Detect returns duplicate groups for the user, largest wasted size first.
func (d *DuplicateDetector) Detect(ctx context.Context, userID int64, opts DetectOptions) ([]DuplicateGroup, error) {
	files, err := d.store.ListActiveFilesForUser(ctx, userID, opts.Mode)
	if err != nil {
		return nil, fmt.Errorf("listing files for duplicate detection: %w", err)
	}

	candidates := make([]*catalog.FileRecord, 0, len(files))

	for _, f := range files {
		if f.IsFolder || f.Size == nil || *f.Size < opts.MinSize {
			continue
		}

		candidates = append(candidates, f)
	}

	claimed := make(map[int64]bool, len(candidates))
	var groups []DuplicateGroup

	tiers := []struct {
		tier DuplicateTier
		key  func(*catalog.FileRecord) string
	}{
		{TierContentHash, func(f *catalog.FileRecord) string { return f.ContentHash }},
		{TierSizeHash, func(f *catalog.FileRecord) string { return f.SizeHash }},
		{TierNameSize, nameSizeKey},
	}

	for _, t := range tiers {
		groups = append(groups, d.groupTier(candidates, claimed, t.tier, t.key)...)
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].WastedSize != groups[j].WastedSize {
			return groups[i].WastedSize > groups[j].WastedSize
		}

		return groups[i].Key < groups[j].Key
	})

	d.logger.Debug("duplicate detection complete",
		slog.Int64("user_id", userID),
		slog.Int("candidates", len(candidates)),
		slog.Int("groups", len(groups)),
	)

	return groups, nil
}

// groupTier buckets the unclaimed candidates by keyFn, emits every bucket
// with at least two members, and claims those members so weaker tiers skip
// them.
func (d *DuplicateDetector) groupTier(
	candidates []*catalog.FileRecord,
	claimed map[int64]bool,
	tier DuplicateTier,
	keyFn func(*catalog.FileRecord) string,
) []DuplicateGroup {
	buckets := make(map[string][]*catalog.FileRecord)

	for _, f := range candidates {
		if claimed[f.ID] {
			continue
		}

		key := keyFn(f)
		if key == "" {
			continue
		}

		buckets[key] = append(buckets[key], f)
	}

	var groups []DuplicateGroup

	for key, members := range buckets {
		if len(members) < 2 {
			continue
		}

		for _, f := range members {
			claimed[f.ID] = true
		}

		sort.Slice(members, func(i, j int) bool {
			if members[i].Name != members[j].Name {
				return members[i].Name < members[j].Name
			}

			return members[i].ID < members[j].ID
		})

		group := DuplicateGroup{Key: key, Tier: tier, Files: members}

		for _, f := range members {
			group.TotalSize += *f.Size
		}

		group.WastedSize = group.TotalSize - *members[0].Size

		groups = append(groups, group)
	}

	return groups
}

// nameSizeKey is the weakest similarity key: the Unicode case-folded,
// NFC-normalized file name joined with the exact size. Case folding rather
// than ToLower keeps names like "Straße"/"STRASSE" together. Nameless
// records get no key.
func nameSizeKey(f *catalog.FileRecord) string {
	if f.Name == "" {
		return ""
	}

	folded := cases.Fold().String(norm.NFC.String(f.Name))

	return "name_size::" + folded + "::" + strconv.FormatInt(*f.Size, 10)
}
