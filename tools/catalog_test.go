package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/tools"
)

func bookingTool(name string) protocol.Tool {
	return protocol.Tool{
		Name:        name,
		Description: "Books " + name,
		Parameters:  map[string]any{"type": "object"},
	}
}

func confirm(_ context.Context, args json.RawMessage) (tools.Result, error) {
	return tools.Result{Content: `{"confirmed":true,"request":` + string(args) + `}`}, nil
}

func TestCatalog_Add(t *testing.T) {
	c := tools.NewCatalog()
	if err := c.Add(bookingTool("book_hotel"), confirm); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	tests := []struct {
		name    string
		tool    protocol.Tool
		handler tools.Handler
		want    error
	}{
		{"unnamed", protocol.Tool{}, confirm, tools.ErrInvalidTool},
		{"no handler", bookingTool("book_flight"), nil, tools.ErrInvalidTool},
		{"duplicate", bookingTool("book_hotel"), confirm, tools.ErrDuplicateTool},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Add(tt.tool, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Add error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := c.Names(); !slices.Equal(got, []string{"book_hotel"}) {
		t.Errorf("names = %v", got)
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := tools.NewCatalog()
	for _, name := range []string{"book_hotel", "book_flight", "cancel_booking"} {
		if err := c.Add(bookingTool(name), confirm); err != nil {
			t.Fatalf("Add(%s) failed: %v", name, err)
		}
	}

	got := c.Lookup("cancel_booking", "search_trains", "book_flight", "cancel_booking")
	var names []string
	for _, def := range got {
		names = append(names, def.Name)
	}
	if want := []string{"book_flight", "cancel_booking"}; !slices.Equal(names, want) {
		t.Errorf("Lookup = %v, want %v", names, want)
	}

	if got := c.Lookup(); len(got) != 0 {
		t.Errorf("Lookup() = %v, want none", got)
	}
}

func TestCatalog_Execute(t *testing.T) {
	var seen json.RawMessage
	c := tools.NewCatalog()
	c.Add(bookingTool("book_hotel"), func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		seen = args
		return tools.Result{Content: "held"}, nil
	})
	c.Add(bookingTool("book_flight"), func(context.Context, json.RawMessage) (tools.Result, error) {
		return tools.Result{}, errors.New("fare expired")
	})

	ctx := context.Background()

	result, err := c.Execute(ctx, "book_hotel", nil)
	if err != nil || result.Content != "held" {
		t.Fatalf("Execute = %+v, %v", result, err)
	}
	if string(seen) != `{}` {
		t.Errorf("handler args = %s, want {}", seen)
	}

	_, err = c.Execute(ctx, "book_train", json.RawMessage(`{}`))
	if !errors.Is(err, tools.ErrUnknownTool) {
		t.Errorf("unknown tool error = %v", err)
	}

	_, err = c.Execute(ctx, "book_flight", json.RawMessage(`{"fare":"Y"}`))
	if err == nil || !strings.Contains(err.Error(), "book_flight") || !strings.Contains(err.Error(), "fare expired") {
		t.Errorf("handler error = %v", err)
	}
}

func TestCatalog_ExecuteCancelled(t *testing.T) {
	called := false
	c := tools.NewCatalog()
	c.Add(bookingTool("book_hotel"), func(context.Context, json.RawMessage) (tools.Result, error) {
		called = true
		return tools.Result{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, "book_hotel", json.RawMessage(`{}`))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("handler ran on a cancelled context")
	}
}

func TestTravel_Executor(t *testing.T) {
	var exec tools.Executor = tools.Travel()

	defs := exec.Lookup(tools.SearchHotels, tools.CurrentTime)
	if len(defs) != 2 || defs[0].Name != tools.CurrentTime || defs[1].Name != tools.SearchHotels {
		t.Fatalf("Lookup = %+v", defs)
	}

	result, err := exec.Execute(context.Background(), tools.CurrentTime, nil)
	if err != nil || result.IsError {
		t.Fatalf("Execute = %+v, %v", result, err)
	}
	if _, err := time.Parse(time.RFC3339, result.Content); err != nil {
		t.Errorf("current_time content %q: %v", result.Content, err)
	}
}

func TestCatalog_ConcurrentUse(t *testing.T) {
	c := tools.NewCatalog()
	c.Add(bookingTool("book_hotel"), confirm)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := c.Add(bookingTool(fmt.Sprintf("book_tour_%d", i)), confirm); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := c.Execute(context.Background(), "book_hotel", json.RawMessage(`{"nights":2}`)); err != nil {
				t.Errorf("Execute failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(c.Names()); got != 9 {
		t.Errorf("catalog size = %d, want 9", got)
	}
}
