package table

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testFilters() map[string]string {
	return map[string]string{
		"status":  "active",
		"country": "DE",
	}
}

// --- MemoryFilterStore ---

func TestMemoryFilterStore_GetNotFound(t *testing.T) {
	store := NewMemoryFilterStore()

	filters, found, err := store.Get(context.Background(), "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
	if filters != nil {
		t.Errorf("filters = %v, want nil", filters)
	}
}

func TestMemoryFilterStore_PutAndGet(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	filters, found, err := store.Get(ctx, "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if filters["status"] != "active" || filters["country"] != "DE" {
		t.Errorf("filters = %v", filters)
	}
}

func TestMemoryFilterStore_IsolatedPerSubjectAndTable(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)

	if _, found, _ := store.Get(ctx, "user-2", "payouts"); found {
		t.Error("other subject sees stored filters")
	}
	if _, found, _ := store.Get(ctx, "user-1", "brokers"); found {
		t.Error("other table sees stored filters")
	}
}

func TestMemoryFilterStore_TTLExpiry(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, found, err := store.Get(ctx, "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if found {
		t.Error("found = true, want false (expired)")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 (expired entry removed)", store.Len())
	}
}

func TestMemoryFilterStore_DeleteField(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	if err := store.DeleteField(ctx, "user-1", "payouts", "status"); err != nil {
		t.Fatalf("DeleteField error: %v", err)
	}

	filters, found, _ := store.Get(ctx, "user-1", "payouts")
	if !found {
		t.Fatal("found = false, want true")
	}
	if _, ok := filters["status"]; ok {
		t.Error("status filter still stored")
	}
	if filters["country"] != "DE" {
		t.Error("unrelated filter was dropped")
	}
}

func TestMemoryFilterStore_DeleteLastFieldDropsEntry(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", map[string]string{"status": "active"}, 5*time.Minute)
	_ = store.DeleteField(ctx, "user-1", "payouts", "status")

	if _, found, _ := store.Get(ctx, "user-1", "payouts"); found {
		t.Error("empty entry should be dropped entirely")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryFilterStore_PutEmptyClears(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	_ = store.Put(ctx, "user-1", "payouts", map[string]string{}, 5*time.Minute)

	if _, found, _ := store.Get(ctx, "user-1", "payouts"); found {
		t.Error("empty put should clear the entry")
	}
}

func TestMemoryFilterStore_Clear(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	if err := store.Clear(ctx, "user-1", "payouts"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, found, _ := store.Get(ctx, "user-1", "payouts"); found {
		t.Error("entry survived Clear")
	}
}

func TestMemoryFilterStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryFilterStore()
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	filters, _, _ := store.Get(ctx, "user-1", "payouts")
	filters["status"] = "mutated"

	again, _, _ := store.Get(ctx, "user-1", "payouts")
	if again["status"] != "active" {
		t.Error("Get returned shared map state")
	}
}

// --- RedisFilterStore ---

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return mr, client
}

func TestRedisFilterStore_GetNotFound(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)

	_, found, err := store.Get(context.Background(), "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
}

func TestRedisFilterStore_PutAndGet(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)
	ctx := context.Background()

	if err := store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	filters, found, err := store.Get(ctx, "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if filters["status"] != "active" || filters["country"] != "DE" {
		t.Errorf("filters = %v", filters)
	}
}

func TestRedisFilterStore_TTLExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisFilterStore(client)
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 1*time.Second)
	mr.FastForward(2 * time.Second)

	_, found, err := store.Get(ctx, "user-1", "payouts")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if found {
		t.Error("found = true, want false (expired)")
	}
}

func TestRedisFilterStore_DeleteField(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	if err := store.DeleteField(ctx, "user-1", "payouts", "status"); err != nil {
		t.Fatalf("DeleteField error: %v", err)
	}

	filters, found, _ := store.Get(ctx, "user-1", "payouts")
	if !found {
		t.Fatal("found = false, want true")
	}
	if _, ok := filters["status"]; ok {
		t.Error("status filter still stored")
	}
}

func TestRedisFilterStore_DeleteLastFieldDropsKey(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", map[string]string{"status": "active"}, 5*time.Minute)
	_ = store.DeleteField(ctx, "user-1", "payouts", "status")

	if _, found, _ := store.Get(ctx, "user-1", "payouts"); found {
		t.Error("empty entry should be deleted from redis")
	}
}

func TestRedisFilterStore_Clear(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)
	ctx := context.Background()

	_ = store.Put(ctx, "user-1", "payouts", testFilters(), 5*time.Minute)
	if err := store.Clear(ctx, "user-1", "payouts"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if _, found, _ := store.Get(ctx, "user-1", "payouts"); found {
		t.Error("entry survived Clear")
	}
}

func TestRedisFilterStore_HealthCheck(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisFilterStore(client)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck error: %v", err)
	}
}

// --- FormatFilterKey ---

func TestFormatFilterKey(t *testing.T) {
	key := FormatFilterKey("user-42", "payouts")
	want := "filters:user-42:payouts"
	if key != want {
		t.Errorf("key = %q, want %q", key, want)
	}
}
