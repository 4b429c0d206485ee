package codegen_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kkkkikiki/loyalty/internal/codegen"
)

func TestStampFormat_ShapeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(1, 12).Draw(t, "length")

		code, err := codegen.StampFormat(length).Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != length {
			t.Fatalf("code %q has length %d, want %d", code, len(code), length)
		}
		if code[0] == '0' {
			t.Fatalf("code %q starts with zero", code)
		}
		for _, c := range code {
			if !strings.ContainsRune(codegen.Digits, c) {
				t.Fatalf("code %q contains non-digit %q", code, c)
			}
		}
	})
}

func TestTicketFormat_ShapeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		length := rapid.IntRange(1, 16).Draw(t, "length")

		code, err := codegen.TicketFormat(length).Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != length {
			t.Fatalf("code %q has length %d, want %d", code, len(code), length)
		}
		for _, c := range code {
			if !strings.ContainsRune(codegen.Base36, c) {
				t.Fatalf("code %q contains %q outside base-36", code, c)
			}
		}
	})
}

func TestFormat_Space(t *testing.T) {
	assert.Equal(t, big.NewInt(900000), codegen.StampFormat(6).Space())
	assert.Equal(t, big.NewInt(36*36), codegen.TicketFormat(2).Space())
	assert.Equal(t, int64(0), codegen.Format{}.Space().Int64())
}

func TestGenerate_RejectsBadFormat(t *testing.T) {
	_, err := codegen.Generate(0, codegen.Digits)
	assert.Error(t, err)

	_, err = codegen.Generate(4, "")
	assert.Error(t, err)
}

func TestUnique_ReturnsFirstFreeCode(t *testing.T) {
	calls := 0
	exists := func(ctx context.Context, code string) (bool, error) {
		calls++
		return calls <= 2, nil
	}

	code, collisions, err := codegen.Unique(context.Background(), codegen.StampFormat(6), 5, exists)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, 2, collisions)
	assert.Equal(t, 3, calls)
}

func TestUnique_ExhaustsAfterCap(t *testing.T) {
	exists := func(ctx context.Context, code string) (bool, error) { return true, nil }

	_, collisions, err := codegen.Unique(context.Background(), codegen.StampFormat(6), 4, exists)
	assert.ErrorIs(t, err, codegen.ErrCodeSpaceExhausted)
	assert.Equal(t, 4, collisions)
}

func TestUnique_PropagatesLookupError(t *testing.T) {
	boom := errors.New("db down")
	exists := func(ctx context.Context, code string) (bool, error) { return false, boom }

	_, _, err := codegen.Unique(context.Background(), codegen.TicketFormat(8), 3, exists)
	assert.ErrorIs(t, err, boom)
}

func TestUnique_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exists := func(ctx context.Context, code string) (bool, error) {
		t.Fatal("lookup must not run after cancellation")
		return false, nil
	}
	_, _, err := codegen.Unique(ctx, codegen.StampFormat(6), 3, exists)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerate_Distribution(t *testing.T) {
	// Every digit should show up across a few thousand draws.
	seen := map[byte]bool{}
	for i := 0; i < 2000; i++ {
		code, err := codegen.Generate(1, codegen.Digits)
		require.NoError(t, err)
		seen[code[0]] = true
	}
	assert.Len(t, seen, 10)
}
