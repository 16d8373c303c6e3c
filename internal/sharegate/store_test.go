package sharegate

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeRedis answers commands from inside the client's hook chain so no
// server is needed. Pipelines are recorded by command line.
type fakeRedis struct {
	mu        sync.Mutex
	pipelines [][]string
	counts    map[string]int64
}

func newFakeRedisClient(t *testing.T) (*redis.Client, *fakeRedis) {
	t.Helper()
	f := &fakeRedis{counts: make(map[string]int64)}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	client.AddHook(f)
	t.Cleanup(func() { client.Close() })
	return client, f
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, fmt.Errorf("dial %s: no server in tests", addr)
	}
}

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apply(cmd)
		return cmd.Err()
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		lines := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			lines = append(lines, commandLine(cmd))
			f.apply(cmd)
		}
		f.pipelines = append(f.pipelines, lines)
		return nil
	}
}

func (f *fakeRedis) apply(cmd redis.Cmder) {
	args := cmd.Args()
	key := ""
	if len(args) > 1 {
		key = fmt.Sprint(args[1])
	}
	switch c := cmd.(type) {
	case *redis.IntCmd:
		if cmd.Name() == "incr" {
			f.counts[key]++
			c.SetVal(f.counts[key])
		}
	case *redis.BoolCmd:
		c.SetVal(true)
	case *redis.StringCmd:
		n, ok := f.counts[key]
		if !ok {
			c.SetErr(redis.Nil)
			return
		}
		c.SetVal(fmt.Sprint(n))
	}
}

func commandLine(cmd redis.Cmder) string {
	parts := make([]string, 0, len(cmd.Args()))
	for _, a := range cmd.Args() {
		parts = append(parts, strings.ToLower(fmt.Sprint(a)))
	}
	return strings.Join(parts, " ")
}

func TestRedisStoreIncrSetsTTLInTransaction(t *testing.T) {
	tests := []struct {
		name string
		ttl  time.Duration
		want []string
	}{
		{
			name: "full day",
			ttl:  24 * time.Hour,
			want: []string{"multi", "incr k", "expire k 86400 nx", "exec"},
		},
		{
			name: "two hours to midnight",
			ttl:  2 * time.Hour,
			want: []string{"multi", "incr k", "expire k 7200 nx", "exec"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, f := newFakeRedisClient(t)
			store := NewRedisStore(client)
			ctx := context.Background()

			for i := int64(1); i <= 2; i++ {
				n, err := store.Incr(ctx, "k", tt.ttl)
				if err != nil {
					t.Fatalf("Incr %d: %v", i, err)
				}
				if n != i {
					t.Fatalf("Incr %d = %d", i, n)
				}
			}

			if len(f.pipelines) != 2 {
				t.Fatalf("pipelines = %v, want one per Incr", f.pipelines)
			}
			for i, got := range f.pipelines {
				if strings.Join(got, "|") != strings.Join(tt.want, "|") {
					t.Errorf("pipeline %d = %q, want %q", i, got, tt.want)
				}
			}
		})
	}
}

func TestRedisStoreGet(t *testing.T) {
	tests := []struct {
		name  string
		incrs int
		want  int64
	}{
		{name: "missing key", incrs: 0, want: 0},
		{name: "counted key", incrs: 3, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newFakeRedisClient(t)
			store := NewRedisStore(client)
			ctx := context.Background()

			for i := 0; i < tt.incrs; i++ {
				if _, err := store.Incr(ctx, "k", time.Hour); err != nil {
					t.Fatal(err)
				}
			}
			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != tt.want {
				t.Errorf("Get = %d, want %d", got, tt.want)
			}
		})
	}
}
