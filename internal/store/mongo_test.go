package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

func TestMongoBackend(t *testing.T) {
	if testMongo == nil {
		t.Skip("mongo: TEST_MONGODB_URI not set")
	}
	testBackend(t, testMongo)
}

func TestMongoEnsureIndexesIdempotent(t *testing.T) {
	if testMongo == nil {
		t.Skip("mongo: TEST_MONGODB_URI not set")
	}
	if err := testMongo.EnsureIndexes(context.Background()); err != nil {
		t.Fatalf("second EnsureIndexes: %v", err)
	}
}

func TestMapMongoError(t *testing.T) {
	t.Run("server timeout wraps DeadlineExceeded", func(t *testing.T) {
		timeout := mongo.CommandError{Code: 50, Name: "MaxTimeMSExpired", Message: "operation exceeded time limit"}
		err := mapMongoError(timeout)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
		var ce mongo.CommandError
		if !errors.As(err, &ce) || ce.Code != 50 {
			t.Errorf("driver error lost: %v", err)
		}
	})

	t.Run("context deadline passes through unchanged", func(t *testing.T) {
		in := fmt.Errorf("finding user: %w", context.DeadlineExceeded)
		if err := mapMongoError(in); err != in {
			t.Errorf("expected same error, got %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		in := errors.New("boom")
		if err := mapMongoError(in); err != in {
			t.Errorf("expected same error, got %v", err)
		}
		if mapMongoError(nil) != nil {
			t.Error("nil mapped to an error")
		}
	})
}
