package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	redisad "staybook/internal/adapters/redis"
)

func TestCache_SetGetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	c := redisad.New(mr.Addr(), "", 0)
	ctx := context.Background()

	type payload struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}

	if err := c.Set(ctx, "reservation:7", payload{ID: 7, Name: "Loft Vieux-Port"}, 60); err != nil {
		t.Fatalf("set: %v", err)
	}

	var got payload
	ok, err := c.Get(ctx, "reservation:7", &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ID != 7 || got.Name != "Loft Vieux-Port" {
		t.Fatalf("unexpected payload: %+v", got)
	}

	if err := c.Del(ctx, "reservation:7"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, err = c.Get(ctx, "reservation:7", &got)
	if err != nil {
		t.Fatalf("get after del: %v", err)
	}
	if ok {
		t.Fatalf("expected miss after delete")
	}
}
