package repository

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/arlo/knowbase/internal/domain"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const defaultVectorDimension = 1536

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API Key (enables TLS automatically)
	UseTLS          bool   // Explicitly enable TLS without API Key
	VectorDimension int
}

// apiKeyInterceptor creates a unary interceptor that adds the API key to metadata
func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// QdrantRepository persists chunk embeddings and answers similarity queries.
// All collections share one Qdrant collection; scoping happens through a
// collection_id payload filter so a new user collection needs no DDL.
type QdrantRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewQdrantRepository creates a new QdrantRepository.
// Supports both local Qdrant (insecure) and Qdrant Cloud (TLS + API Key).
func NewQdrantRepository(cfg *QdrantConnectionConfig) (*QdrantRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption

	useTLS := cfg.UseTLS || cfg.APIKey != ""

	if useTLS {
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
		creds := credentials.NewTLS(tlsConfig)
		opts = append(opts, grpc.WithTransportCredentials(creds))

		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &QdrantRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection.
func (r *QdrantRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and verifies
// the stored vector size matches the configured embedding dimension. A
// mismatch means the embedding backend changed underneath existing vectors,
// which would silently corrupt similarity scores.
func (r *QdrantRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
		HnswConfig: &pb.HnswConfigDiff{
			M:                 optionalUint64(16),
			EfConstruct:       optionalUint64(128),
			FullScanThreshold: optionalUint64(10000),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	return nil
}

func optionalUint64(v uint64) *uint64 {
	return &v
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}

	config := info.GetConfig()
	if config == nil {
		return 0, false
	}

	params := config.GetParams()
	if params == nil {
		return 0, false
	}

	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}

	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}

	return 0, false
}

// StoreBatch writes one point per chunk in a single upsert. The chunk and
// vector slices must align one-to-one; a mismatch is rejected before any
// write so a chunk can never be indexed without its vector.
func (r *QdrantRepository) StoreBatch(ctx context.Context, collectionID, documentID string, chunks []domain.Chunk, vectors [][]float32) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%w: %d chunks, %d vectors", domain.ErrAlignment, len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]*pb.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{
					Uuid: uuid.New().String(),
				},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{
						Data: vectors[i],
					},
				},
			},
			Payload: map[string]*pb.Value{
				"collection_id": {Kind: &pb.Value_StringValue{StringValue: collectionID}},
				"document_id":   {Kind: &pb.Value_StringValue{StringValue: documentID}},
				"chunk_text":    {Kind: &pb.Value_StringValue{StringValue: chunk.Text}},
				"chunk_index":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(chunk.Index)}},
				"start_char":    {Kind: &pb.Value_IntegerValue{IntegerValue: int64(chunk.StartChar)}},
				"end_char":      {Kind: &pb.Value_IntegerValue{IntegerValue: int64(chunk.EndChar)}},
				"created_at":    {Kind: &pb.Value_StringValue{StringValue: createdAt}},
			},
		}
	}

	_, err := r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	return len(points), nil
}

// Search returns up to topK chunks from the collection whose cosine
// similarity to the query vector meets the threshold, ordered by
// similarity descending. An empty result is a normal outcome.
func (r *QdrantRepository) Search(ctx context.Context, collectionID string, vector []float32, topK int, threshold float32) ([]domain.SimilarityMatch, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		ScoreThreshold: &threshold,
		Filter:         collectionFilter(collectionID),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	matches := make([]domain.SimilarityMatch, len(resp.Result))
	for i, scored := range resp.Result {
		payload := scored.GetPayload()
		matches[i] = domain.SimilarityMatch{
			ID:         scored.Id.GetUuid(),
			DocumentID: payload["document_id"].GetStringValue(),
			ChunkText:  payload["chunk_text"].GetStringValue(),
			ChunkIndex: int(payload["chunk_index"].GetIntegerValue()),
			Similarity: scored.Score,
		}
	}

	return matches, nil
}

// DeleteByDocument removes every stored embedding of one document.
func (r *QdrantRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	return r.deleteByFilter(ctx, keywordFilter("document_id", documentID))
}

// DeleteByCollection removes every stored embedding of a collection.
func (r *QdrantRepository) DeleteByCollection(ctx context.Context, collectionID string) error {
	return r.deleteByFilter(ctx, collectionFilter(collectionID))
}

func (r *QdrantRepository) deleteByFilter(ctx context.Context, filter *pb.Filter) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: filter,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// CountChunks returns the number of stored embeddings scoped to a collection.
func (r *QdrantRepository) CountChunks(ctx context.Context, collectionID string) (int64, error) {
	exact := true
	resp, err := r.pointsClient.Count(ctx, &pb.CountPoints{
		CollectionName: r.collectionName,
		Filter:         collectionFilter(collectionID),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return int64(resp.GetResult().GetCount()), nil
}

func collectionFilter(collectionID string) *pb.Filter {
	return keywordFilter("collection_id", collectionID)
}

func keywordFilter(key, value string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: key,
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: value},
						},
					},
				},
			},
		},
	}
}
