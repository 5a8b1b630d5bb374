package temporal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
)

func TestTemporalError(t *testing.T) {
	t.Run("Error includes all fields", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartReviewJobWorkflow",
			Kind:       ErrWorkflowNotFound,
			WorkflowID: "review-123",
			RunID:      "run-456",
			Err:        errors.New("underlying error"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartReviewJobWorkflow")
		assert.Contains(t, msg, "workflow not found")
		assert.Contains(t, msg, "review-123")
		assert.Contains(t, msg, "run-456")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Error without workflow IDs", func(t *testing.T) {
		err := &TemporalError{
			Op:   "Health",
			Kind: ErrConnectionFailed,
		}

		msg := err.Error()
		assert.Contains(t, msg, "Health")
		assert.Contains(t, msg, "connection failed")
		assert.NotContains(t, msg, "workflowID")
	})

	t.Run("Unwrap returns underlying error", func(t *testing.T) {
		underlying := errors.New("underlying")
		err := &TemporalError{
			Op:   "Test",
			Kind: ErrConnectionFailed,
			Err:  underlying,
		}

		assert.Equal(t, underlying, err.Unwrap())
	})

	t.Run("Is matches Kind", func(t *testing.T) {
		err := &TemporalError{
			Op:   "Test",
			Kind: ErrWorkflowAlreadyStarted,
		}

		assert.True(t, errors.Is(err, ErrWorkflowAlreadyStarted))
		assert.False(t, errors.Is(err, ErrConnectionFailed))
	})
}

func TestWrapTemporalError(t *testing.T) {
	t.Run("returns nil for nil error", func(t *testing.T) {
		assert.Nil(t, wrapTemporalError("Test", nil, "", ""))
	})

	t.Run("wraps NotFound error", func(t *testing.T) {
		result := wrapTemporalError("Test", serviceerror.NewNotFound("not found"), "wf-1", "run-1")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrWorkflowNotFound, te.Kind)
	})

	t.Run("wraps WorkflowExecutionAlreadyStarted error", func(t *testing.T) {
		alreadyStarted := serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")
		result := wrapTemporalError("Test", alreadyStarted, "wf-1", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrWorkflowAlreadyStarted, te.Kind)
	})

	t.Run("wraps context.DeadlineExceeded", func(t *testing.T) {
		result := wrapTemporalError("Test", context.DeadlineExceeded, "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrDeadlineExceeded, te.Kind)
	})

	t.Run("wraps context.Canceled", func(t *testing.T) {
		result := wrapTemporalError("Test", context.Canceled, "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrClientClosed, te.Kind)
	})

	t.Run("wraps unknown error as connection failed", func(t *testing.T) {
		result := wrapTemporalError("Test", errors.New("unknown error"), "", "")

		var te *TemporalError
		require.True(t, errors.As(result, &te))
		assert.Equal(t, ErrConnectionFailed, te.Kind)
	})
}

func TestErrorCheckers(t *testing.T) {
	t.Run("IsWorkflowNotFound", func(t *testing.T) {
		err := &TemporalError{Kind: ErrWorkflowNotFound}
		assert.True(t, IsWorkflowNotFound(err))
		assert.False(t, IsWorkflowNotFound(errors.New("other")))
	})

	t.Run("IsWorkflowAlreadyStarted", func(t *testing.T) {
		err := &TemporalError{Kind: ErrWorkflowAlreadyStarted}
		assert.True(t, IsWorkflowAlreadyStarted(err))
		assert.False(t, IsWorkflowAlreadyStarted(errors.New("other")))
	})
}

func TestWorkflowIDForJob(t *testing.T) {
	jobID := uuid.New()
	workflowID := WorkflowIDForJob(jobID)
	assert.Equal(t, "review-"+jobID.String(), workflowID)

	// Deterministic: the same job always maps to the same workflow ID, which
	// is what makes enqueueing idempotent.
	assert.Equal(t, workflowID, WorkflowIDForJob(jobID))
}

func TestTLSConfig(t *testing.T) {
	t.Run("returns nil when not enabled", func(t *testing.T) {
		cfg := &TLSConfig{Enabled: false}
		tlsCfg, err := cfg.buildTLSConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsCfg)
	})

	t.Run("builds config with basic settings", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:            true,
			ServerName:         "temporal.example.com",
			InsecureSkipVerify: true,
		}
		tlsCfg, err := cfg.buildTLSConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsCfg)
		assert.Equal(t, "temporal.example.com", tlsCfg.ServerName)
		assert.True(t, tlsCfg.InsecureSkipVerify)
	})

	t.Run("errors on invalid cert path", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:  true,
			CertPath: "/nonexistent/cert.pem",
			KeyPath:  "/nonexistent/key.pem",
		}
		_, err := cfg.buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load client certificate")
	})

	t.Run("errors on invalid CA cert path", func(t *testing.T) {
		cfg := &TLSConfig{
			Enabled:    true,
			CACertPath: "/nonexistent/ca.pem",
		}
		_, err := cfg.buildTLSConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read CA certificate")
	})
}

func TestJobWorkflowClient_Closed(t *testing.T) {
	newClosed := func() *JobWorkflowClient {
		return &JobWorkflowClient{closed: true}
	}

	t.Run("Health", func(t *testing.T) {
		err := newClosed().Health(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("StartReviewJobWorkflow", func(t *testing.T) {
		_, _, err := newClosed().StartReviewJobWorkflow(context.Background(), nil, ReviewJobWorkflowInput{
			JobID: uuid.New(),
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("CancelWorkflow", func(t *testing.T) {
		err := newClosed().CancelWorkflow(context.Background(), "wf-1", "run-1")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("SignalWorkflow", func(t *testing.T) {
		err := newClosed().SignalWorkflow(context.Background(), "wf-1", "run-1", SignalCancel, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("QueryWorkflow", func(t *testing.T) {
		var result interface{}
		err := newClosed().QueryWorkflow(context.Background(), "wf-1", "run-1", QueryProgress, &result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})

	t.Run("GetWorkflowResult", func(t *testing.T) {
		var result interface{}
		err := newClosed().GetWorkflowResult(context.Background(), "wf-1", "run-1", &result)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrClientClosed))
	})
}

func TestJobWorkflowClient_Accessors(t *testing.T) {
	c := NewJobWorkflowClient(nil, "review-jobs")
	assert.Equal(t, "review-jobs", c.TaskQueue())
	assert.Equal(t, DefaultHealthCheckTimeout, c.healthCheckTimeout)

	// Close with a nil underlying client must not panic, and repeated Close
	// is safe.
	c.Close()
	c.Close()
}
