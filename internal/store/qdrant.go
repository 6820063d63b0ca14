package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/failbank/internal/classify"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("failbank.store.qdrant")

// Payload key carrying the content fingerprint. Qdrant point IDs must be
// UUIDs, so the fingerprint itself travels in the payload and the point ID
// is a UUIDv5 derived from it.
const metaFingerprint = "fingerprint"

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host is the Qdrant server hostname. Default: "localhost"
	Host string `koanf:"host"`

	// Port is the Qdrant gRPC port. Default: 6334
	Port int `koanf:"port"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// Collection is the collection name holding failure records.
	// Default: "cicd_failures"
	Collection string `koanf:"collection"`

	// VectorSize is the expected embedding dimension.
	// Default: 1536 (text-embedding-3-small)
	VectorSize int `koanf:"vector_size"`

	// MaxMessageSize is the gRPC message size limit in bytes.
	// Default: 32MB
	MaxMessageSize int `koanf:"max_message_size"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Collection == "" {
		c.Collection = "cicd_failures"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 32 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c *QdrantConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// QdrantStore implements Store using Qdrant's native gRPC client.
//
// The cosine-distance collection is created on first use. Like chromem,
// Qdrant's upsert overwrites on duplicate IDs, so Insert serializes its
// existence check and upsert behind a mutex to get check-and-set semantics
// within this process.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger

	writeMu sync.Mutex

	// ensureMu guards ensured, which latches once the collection is known
	// to exist. A failed check is retried on the next call.
	ensureMu sync.Mutex
	ensured  bool
}

// NewQdrantStore creates a QdrantStore and verifies connectivity.
func NewQdrantStore(config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check failed: %w", err)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return s, nil
}

// ensureCollection creates the cosine-distance collection if it is missing.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()

	if s.ensured {
		return nil
	}

	_, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err == nil {
		s.ensured = true
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.config.VectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
	}

	s.ensured = true
	return nil
}

// pointID derives the deterministic Qdrant point ID for a fingerprint.
func pointID(fingerprint string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fingerprint)).String()
}

// LookupExact returns the record with the given fingerprint, or (nil, nil)
// when no such record exists. The lookup filters on the fingerprint payload
// field rather than the point ID, so the raw fingerprint remains the
// caller-visible identity.
func (s *QdrantStore) LookupExact(ctx context.Context, id string) (*FailureRecord, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.LookupExact")
	defer span.End()

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				{
					ConditionOneOf: &qdrant.Condition_Field{
						Field: &qdrant.FieldCondition{
							Key: metaFingerprint,
							Match: &qdrant.Match{
								MatchValue: &qdrant.Match_Keyword{Keyword: id},
							},
						},
					},
				},
			},
		},
		Limit:       qdrant.PtrOf(uint64(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("looking up %s: %w", id, err)
	}

	if len(points) == 0 {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, nil
	}

	rec := recordFromPayload(points[0].Payload)
	span.SetAttributes(attribute.Bool("found", true))
	return &rec, nil
}

// QueryNearest returns up to k records ordered by ascending cosine distance.
func (s *QdrantStore) QueryNearest(ctx context.Context, embedding []float32, k int) ([]Neighbor, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.QueryNearest")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: got %d, store configured for %d",
			ErrDimensionMismatch, len(embedding), s.config.VectorSize)
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	// Qdrant scores cosine as similarity (higher is closer); convert to
	// distance so callers get one metric regardless of backend.
	neighbors := make([]Neighbor, len(points))
	for i, p := range points {
		neighbors[i] = Neighbor{
			Record:   recordFromPayload(p.Payload),
			Distance: distanceFromSimilarity(p.Score),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(neighbors)))
	return neighbors, nil
}

// Insert durably persists a new record, rejecting duplicates.
func (s *QdrantStore) Insert(ctx context.Context, rec *FailureRecord) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("id", rec.ID))

	if rec.ID == "" {
		return fmt.Errorf("record id required")
	}
	if len(rec.Embedding) != s.config.VectorSize {
		return fmt.Errorf("%w: got %d, store configured for %d",
			ErrDimensionMismatch, len(rec.Embedding), s.config.VectorSize)
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	existing, err := s.LookupExact(ctx, rec.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		span.SetStatus(codes.Error, "duplicate id")
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}

	payload := map[string]*qdrant.Value{
		metaFingerprint:  {Kind: &qdrant.Value_StringValue{StringValue: rec.ID}},
		"content":        {Kind: &qdrant.Value_StringValue{StringValue: rec.RawText}},
		metaCategory:     {Kind: &qdrant.Value_StringValue{StringValue: string(rec.Category)}},
		metaSeverity:     {Kind: &qdrant.Value_StringValue{StringValue: string(rec.Severity)}},
		metaAnalysis:     {Kind: &qdrant.Value_StringValue{StringValue: rec.Analysis}},
		metaSuggestedFix: {Kind: &qdrant.Value_StringValue{StringValue: rec.SuggestedFix}},
		metaCreatedAt:    {Kind: &qdrant.Value_StringValue{StringValue: rec.CreatedAt.UTC().Format(time.RFC3339Nano)}},
	}

	// Wait forces the write to be applied before the call returns; inserts
	// must be durable, not queued.
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.Collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(pointID(rec.ID)),
				Vectors: qdrant.NewVectors(rec.Embedding...),
				Payload: payload,
			},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting point: %w", err)
	}

	s.logger.Debug("inserted failure record",
		zap.String("id", rec.ID),
		zap.String("category", string(rec.Category)),
	)

	return nil
}

// Count returns the number of stored records.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}

	info, err := s.client.GetCollectionInfo(ctx, s.config.Collection)
	if err != nil {
		return 0, fmt.Errorf("getting collection info: %w", err)
	}

	if info.PointsCount == nil {
		return 0, nil
	}
	return int(*info.PointsCount), nil
}

// AllMetadata returns a summary for every stored record, paging through the
// collection with filtered queries.
func (s *QdrantStore) AllMetadata(ctx context.Context) ([]Summary, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AllMetadata")
	defer span.End()

	count, err := s.Count(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if count == 0 {
		return []Summary{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.Collection,
		Limit:          qdrant.PtrOf(uint64(count)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("enumerating collection %s: %w", s.config.Collection, err)
	}

	summaries := make([]Summary, len(points))
	for i, p := range points {
		rec := recordFromPayload(p.Payload)
		summaries[i] = Summary{
			ID:        rec.ID,
			Category:  rec.Category,
			Severity:  rec.Severity,
			CreatedAt: rec.CreatedAt,
		}
	}

	span.SetAttributes(attribute.Int("records", len(summaries)))
	return summaries, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// recordFromPayload rebuilds a FailureRecord from a Qdrant point payload.
// The stored embedding is not carried back; no read path needs it.
func recordFromPayload(payload map[string]*qdrant.Value) FailureRecord {
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				return sv.StringValue
			}
		}
		return ""
	}

	return FailureRecord{
		ID:           str(metaFingerprint),
		RawText:      str("content"),
		Category:     classify.Category(str(metaCategory)),
		Severity:     classify.Severity(str(metaSeverity)),
		Analysis:     str(metaAnalysis),
		SuggestedFix: str(metaSuggestedFix),
		CreatedAt:    parseCreatedAt(str(metaCreatedAt)),
	}
}

var _ Store = (*QdrantStore)(nil)
