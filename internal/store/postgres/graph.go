package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lineageforge/internal/claimgraph"
	"lineageforge/internal/resolution"
	"lineageforge/internal/validation"
	id "lineageforge/pkg/domain"
	"lineageforge/pkg/requestcontext"
)

// GraphStore reads snapshots and writes engine results through pgx.
type GraphStore struct {
	pool *pgxpool.Pool
}

func NewGraphStore(pool *pgxpool.Pool) *GraphStore {
	return &GraphStore{pool: pool}
}

const selectPersons = `
SELECT person_id, is_active, merged_into
FROM persons
ORDER BY person_id`

const selectClaims = `
SELECT c.claim_id, c.subject_id, c.predicate, c.object_id, c.object_value,
       c.source_id, c.confidence, c.confidence_level, c.time_start, c.time_end,
       c.place_id, COALESCE(pl.name, c.place_name), c.rationale
FROM claims c
LEFT JOIN places pl ON pl.place_id = c.place_id
ORDER BY c.claim_id`

// LoadSnapshot reads persons and claims in one repeatable-read transaction
// so the snapshot is a consistent view.
func (s *GraphStore) LoadSnapshot(ctx context.Context) (*claimgraph.Snapshot, error) {
	var (
		persons []claimgraph.Person
		claims  []claimgraph.Claim
	)
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, selectPersons)
		if err != nil {
			return fmt.Errorf("query persons: %w", err)
		}
		persons, err = pgx.CollectRows(rows, scanPerson)
		if err != nil {
			return fmt.Errorf("scan persons: %w", err)
		}

		rows, err = tx.Query(ctx, selectClaims)
		if err != nil {
			return fmt.Errorf("query claims: %w", err)
		}
		claims, err = pgx.CollectRows(rows, scanClaim)
		if err != nil {
			return fmt.Errorf("scan claims: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return claimgraph.NewSnapshot(persons, claims)
}

func scanPerson(row pgx.CollectableRow) (claimgraph.Person, error) {
	var (
		pid    uuid.UUID
		active bool
		merged uuid.NullUUID
	)
	if err := row.Scan(&pid, &active, &merged); err != nil {
		return claimgraph.Person{}, err
	}
	p := claimgraph.Person{ID: id.PersonID(pid), IsActive: active}
	if merged.Valid {
		target := id.PersonID(merged.UUID)
		p.MergedInto = &target
	}
	return p, nil
}

func scanClaim(row pgx.CollectableRow) (claimgraph.Claim, error) {
	var (
		cid, subject, source uuid.UUID
		object, place        uuid.NullUUID
		c                    claimgraph.Claim
		predicate, level     string
	)
	err := row.Scan(&cid, &subject, &predicate, &object, &c.ObjectValue,
		&source, &c.Confidence, &level, &c.TimeStart, &c.TimeEnd,
		&place, &c.PlaceName, &c.Rationale)
	if err != nil {
		return claimgraph.Claim{}, err
	}
	c.ID = id.ClaimID(cid)
	c.SubjectID = id.PersonID(subject)
	c.SourceID = id.SourceID(source)
	c.Predicate = claimgraph.Predicate(predicate)
	c.ConfidenceLevel = claimgraph.ConfidenceLevel(level)
	if object.Valid {
		o := id.PersonID(object.UUID)
		c.ObjectID = &o
	}
	if place.Valid {
		p := id.PlaceID(place.UUID)
		c.PlaceID = &p
	}
	return c, nil
}

// Import bulk-loads a graph document. Places named by claims are upserted;
// persons and claims are copied in.
func (s *GraphStore) Import(ctx context.Context, persons []claimgraph.Person, claims []claimgraph.Claim) error {
	if _, err := claimgraph.NewSnapshot(persons, claims); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, c := range claims {
			if c.PlaceID != nil && !c.PlaceID.IsNil() {
				batch.Queue(`INSERT INTO places (place_id, name) VALUES ($1, $2)
					ON CONFLICT (place_id) DO UPDATE SET name = EXCLUDED.name`,
					uuid.UUID(*c.PlaceID), c.PlaceName)
			}
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("upsert places: %w", err)
			}
		}

		_, err := tx.CopyFrom(ctx, pgx.Identifier{"persons"},
			[]string{"person_id", "is_active", "merged_into"},
			pgx.CopyFromSlice(len(persons), func(i int) ([]any, error) {
				p := persons[i]
				return []any{uuid.UUID(p.ID), p.IsActive, nullPerson(p.MergedInto)}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy persons: %w", err)
		}

		_, err = tx.CopyFrom(ctx, pgx.Identifier{"claims"},
			[]string{"claim_id", "subject_id", "predicate", "object_id", "object_value",
				"source_id", "confidence", "confidence_level", "time_start", "time_end",
				"place_id", "place_name", "rationale"},
			pgx.CopyFromSlice(len(claims), func(i int) ([]any, error) {
				c := claims[i]
				var place any
				placeName := c.PlaceName
				if c.PlaceID != nil && !c.PlaceID.IsNil() {
					place = uuid.UUID(*c.PlaceID)
					placeName = ""
				}
				return []any{
					uuid.UUID(c.ID), uuid.UUID(c.SubjectID), string(c.Predicate), nullPerson(c.ObjectID), c.ObjectValue,
					uuid.UUID(c.SourceID), c.Confidence, string(c.ConfidenceLevel), c.TimeStart, c.TimeEnd,
					place, placeName, c.Rationale,
				}, nil
			}))
		if err != nil {
			return fmt.Errorf("copy claims: %w", err)
		}
		return nil
	})
}

// SaveResolution writes merge events, person status and the final owner of
// every reassigned claim in one transaction.
func (s *GraphStore) SaveResolution(ctx context.Context, snapshot *claimgraph.Snapshot, result *resolution.Result) error {
	if len(result.Events) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		reassigned := make(map[id.ClaimID]struct{})

		for _, ev := range result.Events {
			features, err := json.Marshal(ev.Features)
			if err != nil {
				return fmt.Errorf("encode features: %w", err)
			}
			batch.Queue(`INSERT INTO merge_events (merge_id, run_id, source_person_id, target_person_id,
					score, features, threshold, rationale, method, performed_by,
					reassigned_subject_claims, reassigned_object_claims, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::uuid[], $12::uuid[], $13)
				ON CONFLICT (merge_id) DO NOTHING`,
				uuid.UUID(ev.ID), uuid.UUID(ev.RunID), uuid.UUID(ev.SourcePersonID), uuid.UUID(ev.TargetPersonID),
				ev.Score, features, ev.Threshold, ev.Rationale, ev.Method, ev.PerformedBy,
				claimStrings(ev.ReassignedSubjectClaims), claimStrings(ev.ReassignedObjectClaims), ev.Timestamp)

			for _, cid := range ev.ReassignedSubjectClaims {
				reassigned[cid] = struct{}{}
			}
			for _, cid := range ev.ReassignedObjectClaims {
				reassigned[cid] = struct{}{}
			}
		}

		now := requestcontext.Now(ctx).UTC()
		for _, p := range snapshot.Persons() {
			if p.IsActive {
				continue
			}
			batch.Queue(`UPDATE persons SET is_active = FALSE, merged_into = $2, updated_at = $3
				WHERE person_id = $1`, uuid.UUID(p.ID), nullPerson(p.MergedInto), now)
		}

		for _, c := range snapshot.Claims() {
			if _, ok := reassigned[c.ID]; !ok {
				continue
			}
			batch.Queue(`UPDATE claims SET subject_id = $2, object_id = $3 WHERE claim_id = $1`,
				uuid.UUID(c.ID), uuid.UUID(c.SubjectID), nullPerson(c.ObjectID))
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write resolution results: %w", err)
		}
		return nil
	})
}

// SaveValidation appends a run's flags with COPY.
func (s *GraphStore) SaveValidation(ctx context.Context, result *validation.Result) error {
	flags := result.Flags
	if len(flags) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"validation_flags"},
		[]string{"flag_id", "run_id", "flag_type", "severity", "person_ids", "claim_ids", "rationale", "details"},
		pgx.CopyFromSlice(len(flags), func(i int) ([]any, error) {
			f := flags[i]
			var details []byte
			if len(f.Details) > 0 {
				raw, err := json.Marshal(f.Details)
				if err != nil {
					return nil, err
				}
				details = raw
			}
			persons := make([]uuid.UUID, len(f.PersonIDs))
			for j, pid := range f.PersonIDs {
				persons[j] = uuid.UUID(pid)
			}
			claims := make([]uuid.UUID, len(f.ClaimIDs))
			for j, cid := range f.ClaimIDs {
				claims[j] = uuid.UUID(cid)
			}
			return []any{uuid.UUID(f.ID), uuid.UUID(f.RunID), string(f.Type), string(f.Severity),
				persons, claims, f.Rationale, details}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy validation flags: %w", err)
	}
	return nil
}

// FlagsByRun reads back a run's flags in stored order.
func (s *GraphStore) FlagsByRun(ctx context.Context, runID id.RunID) ([]validation.Flag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT flag_id, flag_type, severity, person_ids, claim_ids, rationale, details
		FROM validation_flags WHERE run_id = $1
		ORDER BY flag_type, severity, flag_id`, uuid.UUID(runID))
	if err != nil {
		return nil, fmt.Errorf("query validation flags: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (validation.Flag, error) {
		var (
			fid             uuid.UUID
			ftype, severity string
			persons, claims []uuid.UUID
			details         []byte
		)
		f := validation.Flag{RunID: runID}
		if err := row.Scan(&fid, &ftype, &severity, &persons, &claims, &f.Rationale, &details); err != nil {
			return validation.Flag{}, err
		}
		f.ID = id.FlagID(fid)
		f.Type = validation.FlagType(ftype)
		f.Severity = validation.Severity(severity)
		for _, p := range persons {
			f.PersonIDs = append(f.PersonIDs, id.PersonID(p))
		}
		for _, c := range claims {
			f.ClaimIDs = append(f.ClaimIDs, id.ClaimID(c))
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &f.Details); err != nil {
				return validation.Flag{}, err
			}
		}
		return f, nil
	})
}

func nullPerson(p *id.PersonID) any {
	if p == nil {
		return nil
	}
	return uuid.UUID(*p)
}

func claimStrings(ids []id.ClaimID) []string {
	out := make([]string, len(ids))
	for i, c := range ids {
		out[i] = c.String()
	}
	return out
}
