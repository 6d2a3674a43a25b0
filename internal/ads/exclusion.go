package ads

import (
	"context"
	"fmt"

	"github.com/Veraticus/ads-placement-excluder/internal/service"
)

// ExcludePlacements adds the channels to the account's shared exclusion list.
// The mutate runs with partial_failure so one rejected channel does not void
// the batch; accepted and rejected channels are reported separately. With
// ValidateOnly set the API checks the batch without applying it.
func (c *Client) ExcludePlacements(ctx context.Context, req service.ExclusionRequest) (*service.ExclusionResult, error) {
	if len(req.ChannelIDs) == 0 {
		return &service.ExclusionResult{}, nil
	}

	sharedSet := fmt.Sprintf("customers/%s/sharedSets/%s", req.CustomerID, c.config.SharedSetID)
	operations := make([]map[string]any, 0, len(req.ChannelIDs))
	for _, channelID := range req.ChannelIDs {
		operations = append(operations, map[string]any{
			"create": map[string]any{
				"sharedSet": sharedSet,
				"youtubeChannel": map[string]any{
					"channelId": channelID,
				},
			},
		})
	}

	body := map[string]any{
		"operations":     operations,
		"partialFailure": true,
		"validateOnly":   req.ValidateOnly,
	}

	url := fmt.Sprintf("%s/customers/%s/sharedCriteria:mutate", c.config.Endpoint, req.CustomerID)

	var resp mutateResponse
	if err := c.post(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	result := &service.ExclusionResult{
		Rejected: resp.rejectedByIndex(req.ChannelIDs),
	}
	for _, channelID := range req.ChannelIDs {
		if _, rejected := result.Rejected[channelID]; !rejected {
			result.Accepted = append(result.Accepted, channelID)
		}
	}

	c.logger.Info("exclusion batch submitted",
		"customer_id", req.CustomerID,
		"accepted", len(result.Accepted),
		"rejected", len(result.Rejected),
		"validate_only", req.ValidateOnly)

	return result, nil
}

type mutateResponse struct {
	Results []struct {
		ResourceName string `json:"resourceName"`
	} `json:"results"`
	PartialFailureError *struct {
		Message string `json:"message"`
		Details []struct {
			Errors []struct {
				Message  string `json:"message"`
				Location struct {
					FieldPathElements []struct {
						FieldName string `json:"fieldName"`
						Index     int    `json:"index"`
					} `json:"fieldPathElements"`
				} `json:"location"`
			} `json:"errors"`
		} `json:"details"`
	} `json:"partialFailureError"`
}

// rejectedByIndex maps partial-failure errors back to the channel of the
// failing operation. An error that cannot be tied to an operation index is
// keyed under "*" so it still surfaces.
func (r mutateResponse) rejectedByIndex(channelIDs []string) map[string]string {
	rejected := make(map[string]string)
	if r.PartialFailureError == nil {
		return rejected
	}

	for _, detail := range r.PartialFailureError.Details {
		for _, apiErr := range detail.Errors {
			indexed := false
			for _, elem := range apiErr.Location.FieldPathElements {
				if elem.FieldName == "operations" && elem.Index < len(channelIDs) {
					rejected[channelIDs[elem.Index]] = apiErr.Message
					indexed = true
					break
				}
			}
			if !indexed {
				rejected["*"] = apiErr.Message
			}
		}
	}

	if len(rejected) == 0 {
		// A partial failure with no parseable details: report the batch
		// message rather than silently accepting everything.
		rejected["*"] = r.PartialFailureError.Message
	}

	return rejected
}
