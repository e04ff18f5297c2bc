package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ajitpratap0/cortex-graph/internal/models"
)

const (
	neo4jConnectTimeout = 10 * time.Second
	neo4jReadTimeout    = 15 * time.Second
	neo4jWriteTimeout   = 30 * time.Second
)

func withTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, d)
}

// entityFilter matches base-labelled nodes and legacy nodes that carry a name and type.
const entityFilter = "(%[1]s:`" + models.BaseLabel + "` OR (%[1]s.name IS NOT NULL AND %[1]s.type IS NOT NULL))"

func isEntity(v string) string { return fmt.Sprintf(entityFilter, v) }

// adoptKeyClause attaches the base label to one legacy node under ($name, $type)
// unless a base-labelled node already holds the key.
const adoptKeyClause = "CALL { MATCH (l {name: $name, type: $type}) " +
	"WHERE NOT l:`" + models.BaseLabel + "` AND NOT EXISTS { MATCH (x:`" + models.BaseLabel + "` {name: $name, type: $type}) } " +
	"WITH l LIMIT 1 SET l:`" + models.BaseLabel + "` } "

// adoptEndpointsClause does the same for every key named $source or $target.
const adoptEndpointsClause = "CALL { MATCH (l) WHERE l.name IN [$source, $target] AND l.type IS NOT NULL " +
	"AND NOT l:`" + models.BaseLabel + "` " +
	"AND NOT EXISTS { MATCH (x:`" + models.BaseLabel + "`) WHERE x.name = l.name AND x.type = l.type } " +
	"WITH l.name AS name, l.type AS type, collect(l)[0] AS keep SET keep:`" + models.BaseLabel + "` } "

// keyConstraintName names the (name, type) uniqueness constraint.
const keyConstraintName = "entity_key"

// entityProjection returns the RETURN columns used to rebuild a models.Entity.
func entityProjection(v string) string {
	return fmt.Sprintf("%[1]s.name AS name, %[1]s.type AS type, coalesce(%[1]s.observations, []) AS observations, "+
		"[l IN labels(%[1]s) WHERE l <> '%[2]s'] AS labels", v, models.BaseLabel)
}

// Neo4jOptions configures a Neo4jStore.
type Neo4jOptions struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements GraphStore on Neo4j 5 using its native vector and fulltext indexes.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions, logger *slog.Logger) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver for %s: %w", opts.URI, err)
	}

	cctx, cancel := withTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(cctx); err != nil {
		_ = driver.Close(context.Background())
		return nil, fmt.Errorf("verifying neo4j connection at %s: %w", opts.URI, err)
	}

	logger.Info("connected to neo4j", "uri", opts.URI, "database", opts.Database)

	return &Neo4jStore{driver: driver, database: opts.Database, logger: logger}, nil
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	rctx, cancel := withTimeout(ctx, neo4jReadTimeout)
	defer cancel()
	res, err := neo4j.ExecuteQuery(rctx, s.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database), neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	wctx, cancel := withTimeout(ctx, neo4jWriteTimeout)
	defer cancel()
	res, err := neo4j.ExecuteQuery(wctx, s.driver, query, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database), neo4j.ExecuteQueryWithWritersRouting())
	if err != nil {
		return nil, err
	}
	return res.Records, nil
}

// EnsureFulltextIndex creates the fulltext index if it does not exist.
func (s *Neo4jStore) EnsureFulltextIndex(ctx context.Context, spec FulltextIndexSpec) error {
	if err := checkIdentifiers(append([]string{spec.Name, spec.Label}, spec.Properties...)...); err != nil {
		return fmt.Errorf("fulltext index %q: %w", spec.Name, err)
	}
	props := make([]string, len(spec.Properties))
	for i, p := range spec.Properties {
		props[i] = "e.`" + p + "`"
	}
	query := fmt.Sprintf("CREATE FULLTEXT INDEX `%s` IF NOT EXISTS FOR (e:`%s`) ON EACH [%s]",
		spec.Name, spec.Label, strings.Join(props, ", "))
	if _, err := s.write(ctx, query, nil); err != nil {
		if isAlreadyExists(err) {
			return ErrIndexExists
		}
		return fmt.Errorf("creating fulltext index %s: %w", spec.Name, err)
	}
	s.logger.Debug("fulltext index ensured", "name", spec.Name)
	return nil
}

// EnsureVectorIndex creates the vector index if it does not exist.
func (s *Neo4jStore) EnsureVectorIndex(ctx context.Context, spec VectorIndexSpec) error {
	if err := checkIdentifiers(spec.Name, spec.Label, spec.Property); err != nil {
		return fmt.Errorf("vector index %q: %w", spec.Name, err)
	}
	if spec.Dimension <= 0 {
		return fmt.Errorf("vector index %s: dimension must be positive, got %d", spec.Name, spec.Dimension)
	}
	if spec.Similarity != "cosine" && spec.Similarity != "euclidean" {
		return fmt.Errorf("vector index %s: unsupported similarity %q", spec.Name, spec.Similarity)
	}
	query := fmt.Sprintf("CREATE VECTOR INDEX `%s` IF NOT EXISTS FOR (e:`%s`) ON (e.`%s`) "+
		"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: '%s'}}",
		spec.Name, spec.Label, spec.Property, spec.Dimension, spec.Similarity)
	if _, err := s.write(ctx, query, nil); err != nil {
		if isAlreadyExists(err) {
			return ErrIndexExists
		}
		return fmt.Errorf("creating vector index %s: %w", spec.Name, err)
	}
	s.logger.Debug("vector index ensured", "name", spec.Name, "dimension", spec.Dimension)
	return nil
}

// EnsureKeyConstraint creates the (name, type) uniqueness constraint on the
// base label. An equivalent constraint under another name counts as success.
func (s *Neo4jStore) EnsureKeyConstraint(ctx context.Context) error {
	query := "CREATE CONSTRAINT `" + keyConstraintName + "` IF NOT EXISTS " +
		"FOR (e:`" + models.BaseLabel + "`) REQUIRE (e.name, e.type) IS UNIQUE"
	if _, err := s.write(ctx, query, nil); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return fmt.Errorf("creating key constraint: %w", err)
	}
	s.logger.Debug("key constraint ensured", "name", keyConstraintName)
	return nil
}

// GetEntity returns the entity stored under key.
func (s *Neo4jStore) GetEntity(ctx context.Context, key models.MergeKey) (*models.Entity, error) {
	query := "MATCH (e {name: $name, type: $type}) WHERE " + isEntity("e") +
		" RETURN " + entityProjection("e") + " LIMIT 1"
	recs, err := s.read(ctx, query, map[string]any{"name": key.Name, "type": key.Type})
	if err != nil {
		return nil, fmt.Errorf("getting entity %s: %w", key, err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	e := entityFromRecord(recs[0])
	return &e, nil
}

// GetEntitiesByName returns all entities named name.
func (s *Neo4jStore) GetEntitiesByName(ctx context.Context, name string) ([]models.Entity, error) {
	query := "MATCH (e {name: $name}) WHERE " + isEntity("e") +
		" RETURN " + entityProjection("e") + " ORDER BY e.type"
	recs, err := s.read(ctx, query, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("getting entities named %q: %w", name, err)
	}
	return entitiesFromRecords(recs), nil
}

// MergeEntity upserts an entity. The observation diff runs inside the query so
// two writers racing on one key never append the same observation twice.
func (s *Neo4jStore) MergeEntity(ctx context.Context, w EntityWrite) (*MergeResult, error) {
	labelClause, err := labelSetClause("e", w.Labels)
	if err != nil {
		return nil, fmt.Errorf("merging entity %s: %w", w.Key, err)
	}
	query := adoptKeyClause +
		"MERGE (e:`" + models.BaseLabel + "` {name: $name, type: $type}) " +
		"WITH e, [o IN $observations WHERE NOT o IN coalesce(e.observations, [])] AS added " +
		"SET e.observations = coalesce(e.observations, []) + added, " +
		embeddingSetClause("e") + " " +
		labelClause +
		"RETURN " + entityProjection("e") + ", added"
	params := map[string]any{
		"name":         w.Key.Name,
		"type":         w.Key.Type,
		"observations": nonNil(w.Observations),
	}
	addEmbeddingParams(params, w.Embeddings, w.IndexedAt)

	recs, err := s.write(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("merging entity %s: %w", w.Key, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("merging entity %s: no row returned", w.Key)
	}
	return &MergeResult{
		Entity: entityFromRecord(recs[0]),
		Added:  stringSlice(recs[0], "added"),
	}, nil
}

// RemoveObservations drops observations from an entity and replaces its vectors.
func (s *Neo4jStore) RemoveObservations(ctx context.Context, r ObservationRemoval) (*models.Entity, error) {
	query := "MATCH (e {name: $name, type: $type}) WHERE " + isEntity("e") + " " +
		"SET e:`" + models.BaseLabel + "`, " +
		"e.observations = [o IN coalesce(e.observations, []) WHERE NOT o IN $observations], " +
		embeddingSetClause("e") + " " +
		"RETURN " + entityProjection("e")
	params := map[string]any{
		"name":         r.Key.Name,
		"type":         r.Key.Type,
		"observations": nonNil(r.Observations),
	}
	addEmbeddingParams(params, r.Embeddings, r.IndexedAt)

	recs, err := s.write(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("removing observations from %s: %w", r.Key, err)
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	e := entityFromRecord(recs[0])
	return &e, nil
}

// SetEmbeddings writes the vectors of an existing node when its observations
// still equal w.Observations. The node is write-locked before the comparison.
func (s *Neo4jStore) SetEmbeddings(ctx context.Context, w EmbeddingWrite) error {
	query := adoptKeyClause +
		"MATCH (e:`" + models.BaseLabel + "` {name: $name, type: $type}) " +
		"SET e._lock = true REMOVE e._lock " +
		"WITH e, coalesce(e.observations, []) = $observations AS current " +
		"FOREACH (_ IN CASE WHEN current THEN [1] ELSE [] END | SET " + embeddingSetClause("e") + ") " +
		"RETURN count(e) AS matched, sum(CASE WHEN current THEN 1 ELSE 0 END) AS updated"
	params := map[string]any{"name": w.Key.Name, "type": w.Key.Type, "observations": nonNil(w.Observations)}
	addEmbeddingParams(params, w.Embeddings, w.IndexedAt)

	recs, err := s.write(ctx, query, params)
	if err != nil {
		return fmt.Errorf("setting embeddings on %s: %w", w.Key, err)
	}
	if len(recs) == 0 || int64Value(recs[0], "matched") == 0 {
		return ErrNotFound
	}
	if int64Value(recs[0], "updated") == 0 {
		return ErrStale
	}
	return nil
}

// DeleteEntities removes nodes by name together with their relations.
func (s *Neo4jStore) DeleteEntities(ctx context.Context, names []string) (int64, error) {
	if len(names) == 0 {
		return 0, nil
	}
	query := "MATCH (e) WHERE " + isEntity("e") + " AND e.name IN $names " +
		"WITH e DETACH DELETE e RETURN count(*) AS deleted"
	recs, err := s.write(ctx, query, map[string]any{"names": names})
	if err != nil {
		return 0, fmt.Errorf("deleting entities: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return int64Value(recs[0], "deleted"), nil
}

// MergeRelation creates a typed edge between every pair of entities with the
// given source and target names. Legacy endpoints are adopted first.
func (s *Neo4jStore) MergeRelation(ctx context.Context, w RelationWrite) (bool, error) {
	rt := w.Relation.RelationType
	if !models.IsSafeIdentifier(rt) {
		return false, fmt.Errorf("merging relation: unsafe relation type %q", rt)
	}
	query := adoptEndpointsClause +
		"MATCH (a:`" + models.BaseLabel + "` {name: $source}), (b:`" + models.BaseLabel + "` {name: $target}) " +
		"MERGE (a)-[r:`" + rt + "`]->(b) " +
		"SET r." + PropContextEmbedding + " = $context, r.created_at = coalesce(r.created_at, $createdAt) " +
		"RETURN count(r) AS merged"
	params := map[string]any{
		"source":    w.Relation.Source,
		"target":    w.Relation.Target,
		"context":   toFloat64s(w.Context),
		"createdAt": w.CreatedAt,
	}
	recs, err := s.write(ctx, query, params)
	if err != nil {
		return false, fmt.Errorf("merging relation %s-%s->%s: %w", w.Relation.Source, rt, w.Relation.Target, err)
	}
	return len(recs) > 0 && int64Value(recs[0], "merged") > 0, nil
}

// DeleteRelations removes the given edges.
func (s *Neo4jStore) DeleteRelations(ctx context.Context, relations []models.Relation) (int64, error) {
	if len(relations) == 0 {
		return 0, nil
	}
	rels := make([]map[string]any, len(relations))
	for i, r := range relations {
		rels[i] = map[string]any{"source": r.Source, "target": r.Target, "relationType": r.RelationType}
	}
	query := "UNWIND $relations AS rel " +
		"MATCH (a {name: rel.source})-[r]->(b {name: rel.target}) " +
		"WHERE type(r) = rel.relationType AND " + isEntity("a") + " AND " + isEntity("b") + " " +
		"DELETE r RETURN count(*) AS deleted"
	recs, err := s.write(ctx, query, map[string]any{"relations": rels})
	if err != nil {
		return 0, fmt.Errorf("deleting relations: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return int64Value(recs[0], "deleted"), nil
}

// Nearest queries a vector index.
func (s *Neo4jStore) Nearest(ctx context.Context, index string, vec []float32, k int) ([]models.ScoredEntity, error) {
	if k <= 0 {
		return []models.ScoredEntity{}, nil
	}
	query := "CALL db.index.vector.queryNodes($index, $k, $vector) YIELD node AS e, score " +
		"RETURN " + entityProjection("e") + ", score ORDER BY score DESC"
	recs, err := s.read(ctx, query, map[string]any{"index": index, "k": k, "vector": toFloat64s(vec)})
	if err != nil {
		return nil, fmt.Errorf("querying vector index %s: %w", index, err)
	}
	return scoredFromRecords(recs), nil
}

// Neighborhood fetches distinct 1-hop neighbors and incident relations.
func (s *Neo4jStore) Neighborhood(ctx context.Context, key models.MergeKey, maxNodes, maxRelations int) (*Neighborhood, error) {
	query := "MATCH (e {name: $name, type: $type}) WHERE " + isEntity("e") + " " +
		"OPTIONAL MATCH (e)-[r]-(n) WHERE " + isEntity("n") + " " +
		"WITH collect(DISTINCT n) AS nodes, " +
		"collect(DISTINCT CASE WHEN r IS NULL THEN null ELSE " +
		"{source: startNode(r).name, target: endNode(r).name, relationType: type(r)} END) AS rels " +
		"RETURN [n IN nodes[0..$maxNodes] | {name: n.name, type: n.type, observations: coalesce(n.observations, []), " +
		"labels: [l IN labels(n) WHERE l <> '" + models.BaseLabel + "']}] AS related, rels[0..$maxRelations] AS relations"
	recs, err := s.read(ctx, query, map[string]any{
		"name": key.Name, "type": key.Type, "maxNodes": maxNodes, "maxRelations": maxRelations,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching neighborhood of %s: %w", key, err)
	}
	nb := &Neighborhood{Related: []models.Entity{}, Relations: []models.Relation{}}
	if len(recs) == 0 {
		return nb, nil
	}
	for _, m := range mapSlice(recs[0], "related") {
		nb.Related = append(nb.Related, entityFromMap(m))
	}
	for _, m := range mapSlice(recs[0], "relations") {
		nb.Relations = append(nb.Relations, relationFromMap(m))
	}
	return nb, nil
}

// Fulltext queries a fulltext index. The query is escaped so user text is
// matched literally rather than parsed as Lucene syntax.
func (s *Neo4jStore) Fulltext(ctx context.Context, index, query string, limit int) ([]models.ScoredEntity, error) {
	q := escapeLucene(query)
	if strings.TrimSpace(q) == "" || limit <= 0 {
		return []models.ScoredEntity{}, nil
	}
	cypher := "CALL db.index.fulltext.queryNodes($index, $query, {limit: $limit}) YIELD node AS e, score " +
		"RETURN " + entityProjection("e") + ", score ORDER BY score DESC"
	recs, err := s.read(ctx, cypher, map[string]any{"index": index, "query": q, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("querying fulltext index %s: %w", index, err)
	}
	return scoredFromRecords(recs), nil
}

// FindByNames returns entities by exact name plus their incident relations.
func (s *Neo4jStore) FindByNames(ctx context.Context, names []string) (*models.KnowledgeGraph, error) {
	g := &models.KnowledgeGraph{Entities: []models.Entity{}, Relations: []models.Relation{}}
	if len(names) == 0 {
		return g, nil
	}
	params := map[string]any{"names": names}
	recs, err := s.read(ctx, "MATCH (e) WHERE "+isEntity("e")+" AND e.name IN $names RETURN "+entityProjection("e"), params)
	if err != nil {
		return nil, fmt.Errorf("finding entities by name: %w", err)
	}
	g.Entities = entitiesFromRecords(recs)

	recs, err = s.read(ctx, "MATCH (a)-[r]->(b) WHERE "+isEntity("a")+" AND "+isEntity("b")+
		" AND (a.name IN $names OR b.name IN $names) "+
		"RETURN DISTINCT a.name AS source, b.name AS target, type(r) AS relationType", params)
	if err != nil {
		return nil, fmt.Errorf("finding relations by name: %w", err)
	}
	g.Relations = relationsFromRecords(recs)
	return g, nil
}

// ReadAll returns the whole graph.
func (s *Neo4jStore) ReadAll(ctx context.Context) (*models.KnowledgeGraph, error) {
	recs, err := s.read(ctx, "MATCH (e) WHERE "+isEntity("e")+" RETURN "+entityProjection("e")+" ORDER BY e.name, e.type", nil)
	if err != nil {
		return nil, fmt.Errorf("reading entities: %w", err)
	}
	g := &models.KnowledgeGraph{Entities: entitiesFromRecords(recs)}

	recs, err = s.read(ctx, "MATCH (a)-[r]->(b) WHERE "+isEntity("a")+" AND "+isEntity("b")+
		" RETURN a.name AS source, b.name AS target, type(r) AS relationType", nil)
	if err != nil {
		return nil, fmt.Errorf("reading relations: %w", err)
	}
	g.Relations = relationsFromRecords(recs)
	return g, nil
}

const unindexedFilter = "(e." + PropContentEmbedding + " IS NULL OR e." + PropObservationEmbedding +
	" IS NULL OR e." + PropIdentityEmbedding + " IS NULL)"

// CountUnindexed counts entities missing a vector.
func (s *Neo4jStore) CountUnindexed(ctx context.Context) (int64, error) {
	recs, err := s.read(ctx, "MATCH (e) WHERE "+isEntity("e")+" AND "+unindexedFilter+" RETURN count(e) AS n", nil)
	if err != nil {
		return 0, fmt.Errorf("counting unindexed entities: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return int64Value(recs[0], "n"), nil
}

// ListUnindexed lists entities missing a vector.
func (s *Neo4jStore) ListUnindexed(ctx context.Context, limit int) ([]models.Entity, error) {
	query := "MATCH (e) WHERE " + isEntity("e") + " AND " + unindexedFilter +
		" RETURN " + entityProjection("e") + " ORDER BY e.name, e.type"
	params := map[string]any{}
	if limit > 0 {
		query += " LIMIT $limit"
		params["limit"] = limit
	}
	recs, err := s.read(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed entities: %w", err)
	}
	return entitiesFromRecords(recs), nil
}

// Stats returns graph counts.
func (s *Neo4jStore) Stats(ctx context.Context) (*models.GraphStats, error) {
	query := "CALL { MATCH (e) WHERE " + isEntity("e") + " RETURN count(e) AS entities } " +
		"CALL { MATCH (a)-[r]->(b) WHERE " + isEntity("a") + " AND " + isEntity("b") + " RETURN count(r) AS relations } " +
		"CALL { MATCH (e) WHERE " + isEntity("e") + " AND " + unindexedFilter + " RETURN count(e) AS unindexed } " +
		"RETURN entities, relations, unindexed"
	recs, err := s.read(ctx, query, nil)
	if err != nil {
		return nil, fmt.Errorf("collecting graph stats: %w", err)
	}
	stats := &models.GraphStats{Collected: time.Now().UTC()}
	if len(recs) > 0 {
		stats.Entities = int64Value(recs[0], "entities")
		stats.Relations = int64Value(recs[0], "relations")
		stats.Unindexed = int64Value(recs[0], "unindexed")
	}
	return stats, nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	pctx, cancel := withTimeout(ctx, neo4jConnectTimeout)
	defer cancel()
	if err := s.driver.VerifyConnectivity(pctx); err != nil {
		return fmt.Errorf("neo4j ping: %w", err)
	}
	return nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func checkIdentifiers(ids ...string) error {
	for _, id := range ids {
		if !models.IsSafeIdentifier(id) {
			return fmt.Errorf("unsafe identifier %q", id)
		}
	}
	return nil
}

// labelSetClause renders "SET v:`A`:`B` " or "" when there are no labels.
func labelSetClause(v string, labels []string) (string, error) {
	if len(labels) == 0 {
		return "", nil
	}
	if err := checkIdentifiers(labels...); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("SET ")
	b.WriteString(v)
	for _, l := range labels {
		b.WriteString(":`")
		b.WriteString(l)
		b.WriteString("`")
	}
	b.WriteString(" ")
	return b.String(), nil
}

func embeddingSetClause(v string) string {
	return fmt.Sprintf("%[1]s.%[2]s = $content, %[1]s.%[3]s = $observation, %[1]s.%[4]s = $identity, %[1]s.%[5]s = $indexedAt",
		v, PropContentEmbedding, PropObservationEmbedding, PropIdentityEmbedding, PropIndexedAt)
}

func addEmbeddingParams(params map[string]any, set models.EmbeddingSet, at time.Time) {
	params["content"] = toFloat64s(set.Content)
	params["observation"] = toFloat64s(set.Observation)
	params["identity"] = toFloat64s(set.Identity)
	if at.IsZero() {
		params["indexedAt"] = nil
	} else {
		params["indexedAt"] = at.UTC()
	}
}

// toFloat64s converts a vector for the driver. A nil vector stays nil so the
// property is removed rather than set to an empty list.
func toFloat64s(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var luceneReplacer = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `&`, `\&`, `|`, `\|`, `!`, `\!`,
	`(`, `\(`, `)`, `\)`, `{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`,
	`^`, `\^`, `"`, `\"`, `~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`,
)

func escapeLucene(q string) string {
	return luceneReplacer.Replace(q)
}

func isAlreadyExists(err error) bool {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return strings.Contains(nerr.Code, "AlreadyExists")
	}
	return false
}

func entityFromRecord(rec *neo4j.Record) models.Entity {
	return models.Entity{
		Name:         stringValue(rec, "name"),
		Type:         stringValue(rec, "type"),
		Observations: stringSlice(rec, "observations"),
		Labels:       stringSlice(rec, "labels"),
	}
}

func entitiesFromRecords(recs []*neo4j.Record) []models.Entity {
	out := make([]models.Entity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, entityFromRecord(rec))
	}
	return out
}

func scoredFromRecords(recs []*neo4j.Record) []models.ScoredEntity {
	out := make([]models.ScoredEntity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.ScoredEntity{Entity: entityFromRecord(rec), Score: float64Value(rec, "score")})
	}
	return out
}

func relationsFromRecords(recs []*neo4j.Record) []models.Relation {
	out := make([]models.Relation, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.Relation{
			Source:       stringValue(rec, "source"),
			Target:       stringValue(rec, "target"),
			RelationType: stringValue(rec, "relationType"),
		})
	}
	return out
}

func entityFromMap(m map[string]any) models.Entity {
	s, _ := m["name"].(string)
	t, _ := m["type"].(string)
	return models.Entity{
		Name:         s,
		Type:         t,
		Observations: anyStrings(m["observations"]),
		Labels:       anyStrings(m["labels"]),
	}
}

func relationFromMap(m map[string]any) models.Relation {
	src, _ := m["source"].(string)
	tgt, _ := m["target"].(string)
	rt, _ := m["relationType"].(string)
	return models.Relation{Source: src, Target: tgt, RelationType: rt}
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func int64Value(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

func float64Value(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func stringSlice(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok {
		return []string{}
	}
	return anyStrings(v)
}

func anyStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapSlice(rec *neo4j.Record, key string) []map[string]any {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
