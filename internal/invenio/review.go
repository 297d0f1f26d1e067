// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package invenio

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Request statuses reported by InvenioRDM.
const (
	requestCreated   = "created"
	requestSubmitted = "submitted"
	requestAccepted  = "accepted"
)

type requestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type commentPayload struct {
	Payload struct {
		Content string `json:"content"`
		Format  string `json:"format"`
	} `json:"payload"`
}

func comment(message string) commentPayload {
	var c commentPayload
	c.Payload.Content = message
	c.Payload.Format = "html"
	return c
}

// SubmitToCommunity opens a community-submission review for a draft and
// submits it. When the draft already has a submitted or accepted review
// the call is a no-op.
func (c *Client) SubmitToCommunity(ctx context.Context, id, communityID, message string) (Result, error) {
	var review requestResponse
	status, err := c.call(ctx, "get review", http.MethodGet, recordPath(id)+"/draft/review", nil, &review, http.StatusOK)
	if err != nil && status != http.StatusNotFound {
		return Result{}, err
	}
	if err != nil {
		review = requestResponse{}
	}

	switch review.Status {
	case requestSubmitted:
		return Result{ID: id, RequestID: review.ID, State: StateSubmitted, Noop: true}, nil
	case requestAccepted:
		return Result{ID: id, RequestID: review.ID, State: StateAccepted, Noop: true}, nil
	case requestCreated:
	default:
		body := map[string]any{
			"receiver": map[string]string{"community": communityID},
			"type":     "community-submission",
		}
		if _, err := c.call(ctx, "create review", http.MethodPut, recordPath(id)+"/draft/review", body, &review, http.StatusOK, http.StatusCreated); err != nil {
			return Result{}, err
		}
	}

	var submitted requestResponse
	if _, err := c.call(ctx, "submit review", http.MethodPost, recordPath(id)+"/draft/actions/submit-review", comment(message), &submitted, http.StatusAccepted, http.StatusOK); err != nil {
		return Result{}, err
	}
	requestID := submitted.ID
	if requestID == "" {
		requestID = review.ID
	}
	return Result{ID: id, RequestID: requestID, State: StateSubmitted}, nil
}

// Approve accepts a submitted review request. An already accepted request
// is a no-op.
func (c *Client) Approve(ctx context.Context, requestID, message string) (Result, error) {
	path := "/requests/" + url.PathEscape(requestID)

	var req requestResponse
	if _, err := c.call(ctx, "get request", http.MethodGet, path, nil, &req, http.StatusOK); err != nil {
		return Result{}, err
	}
	switch req.Status {
	case requestAccepted:
		return Result{RequestID: requestID, State: StateAccepted, Noop: true}, nil
	case requestSubmitted:
	default:
		return Result{}, &Error{Op: "approve", Err: fmt.Errorf("request %s is %q, not submitted", requestID, req.Status)}
	}

	if _, err := c.call(ctx, "approve", http.MethodPost, path+"/actions/accept", comment(message), &req, http.StatusOK); err != nil {
		return Result{}, err
	}
	return Result{RequestID: requestID, State: StateAccepted}, nil
}
