package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/openresponses/openresponses/pkg/api"
	"github.com/openresponses/openresponses/pkg/config"
)

// Key layout: resp:{id} holds the completion, resp:{id}:input and
// resp:{id}:output are RPUSH lists in write order. vs:{id} holds one vector
// store record, vs:{id}:files a hash of file records, vs:index the id set.
const (
	redisResponsePrefix = "resp:"
	redisStorePrefix    = "vs:"
	redisStoreIndex     = "vs:index"
)

// Redis is the go-redis backend.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and pings the configured server.
func NewRedis(cfg config.StoreConfig) (*Redis, error) {
	if cfg.Redis == nil {
		return nil, api.NewError(api.KindStorage, "redis backend requires a redis config block")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, api.WrapError(api.KindStorage, "connecting to redis", err)
	}
	return &Redis{client: client}, nil
}

func (r *Redis) StoreResponse(ctx context.Context, completion *api.ModelCompletion, inputItems []api.InputItem) error {
	if completion == nil || completion.ID == "" {
		return api.NewError(api.KindStorage, "cannot store a completion without an id")
	}

	raw, err := json.Marshal(completion)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding completion", err)
	}

	key := redisResponsePrefix + completion.ID
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key, key+":input", key+":output")
	pipe.Set(ctx, key, raw, 0)
	for _, item := range inputItems {
		encoded, err := json.Marshal(item)
		if err != nil {
			return api.WrapError(api.KindStorage, "encoding item", err)
		}
		pipe.RPush(ctx, key+":input", encoded)
	}
	for _, item := range OutputItems(completion) {
		encoded, err := json.Marshal(item)
		if err != nil {
			return api.WrapError(api.KindStorage, "encoding item", err)
		}
		pipe.RPush(ctx, key+":output", encoded)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return api.WrapError(api.KindStorage, "writing response", err)
	}
	return nil
}

func (r *Redis) GetResponse(ctx context.Context, id string) (*api.ModelCompletion, error) {
	raw, err := r.client.Get(ctx, redisResponsePrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading response", err)
	}
	var completion api.ModelCompletion
	if err := json.Unmarshal([]byte(raw), &completion); err != nil {
		return nil, api.WrapError(api.KindStorage, "decoding response", err)
	}
	return &completion, nil
}

func (r *Redis) GetInputItems(ctx context.Context, id string) ([]api.InputItem, error) {
	return r.itemList(ctx, id, ":input")
}

func (r *Redis) GetOutputItems(ctx context.Context, id string) ([]api.InputItem, error) {
	return r.itemList(ctx, id, ":output")
}

func (r *Redis) itemList(ctx context.Context, id, suffix string) ([]api.InputItem, error) {
	key := redisResponsePrefix + id
	exists, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading response", err)
	}
	if exists == 0 {
		return nil, notFound(id)
	}

	entries, err := r.client.LRange(ctx, key+suffix, 0, -1).Result()
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading items", err)
	}
	items := make([]api.InputItem, 0, len(entries))
	for _, entry := range entries {
		var item api.InputItem
		if err := json.Unmarshal([]byte(entry), &item); err != nil {
			return nil, api.WrapError(api.KindStorage, "decoding item", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Redis) CreateVectorStore(ctx context.Context, vs *VectorStore) error {
	if vs.CreatedAt == 0 {
		vs.CreatedAt = now()
	}
	raw, err := json.Marshal(vs)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding vector store", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisStorePrefix+vs.ID, raw, 0)
	pipe.SAdd(ctx, redisStoreIndex, vs.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return api.WrapError(api.KindStorage, "writing vector store", err)
	}
	return nil
}

func (r *Redis) GetVectorStore(ctx context.Context, id string) (*VectorStore, error) {
	raw, err := r.client.Get(ctx, redisStorePrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, vectorStoreNotFound(id)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading vector store", err)
	}
	var vs VectorStore
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		return nil, api.WrapError(api.KindStorage, "decoding vector store", err)
	}
	files, err := r.fileRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	vs.FileCounts = countRecords(files)
	return &vs, nil
}

func (r *Redis) ListVectorStores(ctx context.Context) ([]*VectorStore, error) {
	ids, err := r.client.SMembers(ctx, redisStoreIndex).Result()
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "listing vector stores", err)
	}
	out := make([]*VectorStore, 0, len(ids))
	for _, id := range ids {
		vs, err := r.GetVectorStore(ctx, id)
		if err != nil {
			if api.IsKind(err, api.KindNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, vs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *Redis) DeleteVectorStore(ctx context.Context, id string) ([]string, error) {
	if _, err := r.client.Get(ctx, redisStorePrefix+id).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, vectorStoreNotFound(id)
		}
		return nil, api.WrapError(api.KindStorage, "reading vector store", err)
	}

	files, err := r.fileRecords(ctx, id)
	if err != nil {
		return nil, err
	}
	fileIDs := make([]string, 0, len(files))
	for _, f := range files {
		fileIDs = append(fileIDs, f.ID)
	}
	sort.Strings(fileIDs)

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, redisStorePrefix+id, redisStorePrefix+id+":files")
	pipe.SRem(ctx, redisStoreIndex, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, api.WrapError(api.KindStorage, "deleting vector store", err)
	}
	return fileIDs, nil
}

func (r *Redis) UpsertVectorStoreFile(ctx context.Context, file *VectorStoreFile) error {
	if _, err := r.client.Get(ctx, redisStorePrefix+file.VectorStoreID).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return vectorStoreNotFound(file.VectorStoreID)
		}
		return api.WrapError(api.KindStorage, "reading vector store", err)
	}
	if file.CreatedAt == 0 {
		file.CreatedAt = now()
	}
	raw, err := json.Marshal(file)
	if err != nil {
		return api.WrapError(api.KindStorage, "encoding file record", err)
	}
	if err := r.client.HSet(ctx, redisStorePrefix+file.VectorStoreID+":files", file.ID, raw).Err(); err != nil {
		return api.WrapError(api.KindStorage, "writing file record", err)
	}
	return nil
}

func (r *Redis) GetVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (*VectorStoreFile, error) {
	raw, err := r.client.HGet(ctx, redisStorePrefix+vectorStoreID+":files", fileID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fileNotFound(fileID)
	}
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading file record", err)
	}
	var file VectorStoreFile
	if err := json.Unmarshal([]byte(raw), &file); err != nil {
		return nil, api.WrapError(api.KindStorage, "decoding file record", err)
	}
	return &file, nil
}

func (r *Redis) ListVectorStoreFiles(ctx context.Context, vectorStoreID string) ([]*VectorStoreFile, error) {
	if _, err := r.client.Get(ctx, redisStorePrefix+vectorStoreID).Result(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, vectorStoreNotFound(vectorStoreID)
		}
		return nil, api.WrapError(api.KindStorage, "reading vector store", err)
	}
	files, err := r.fileRecords(ctx, vectorStoreID)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt != files[j].CreatedAt {
			return files[i].CreatedAt > files[j].CreatedAt
		}
		return files[i].ID < files[j].ID
	})
	return files, nil
}

func (r *Redis) DeleteVectorStoreFile(ctx context.Context, vectorStoreID, fileID string) (bool, error) {
	n, err := r.client.HDel(ctx, redisStorePrefix+vectorStoreID+":files", fileID).Result()
	if err != nil {
		return false, api.WrapError(api.KindStorage, "deleting file record", err)
	}
	return n > 0, nil
}

func (r *Redis) fileRecords(ctx context.Context, vectorStoreID string) ([]*VectorStoreFile, error) {
	entries, err := r.client.HGetAll(ctx, redisStorePrefix+vectorStoreID+":files").Result()
	if err != nil {
		return nil, api.WrapError(api.KindStorage, "reading file records", err)
	}
	out := make([]*VectorStoreFile, 0, len(entries))
	for _, raw := range entries {
		var file VectorStoreFile
		if err := json.Unmarshal([]byte(raw), &file); err != nil {
			return nil, api.WrapError(api.KindStorage, "decoding file record", err)
		}
		out = append(out, &file)
	}
	return out, nil
}

func countRecords(files []*VectorStoreFile) FileCounts {
	var counts FileCounts
	for _, file := range files {
		counts.Total++
		switch file.Status {
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		default:
			counts.InProgress++
		}
	}
	return counts
}

func (r *Redis) Close() error { return r.client.Close() }

var _ Store = (*Redis)(nil)
