package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Callback actions.
const (
	ActionDetails = "details"
	ActionImport  = "importbalance"
)

// ErrBadCallback is returned for callback data that cannot be parsed.
var ErrBadCallback = errors.New("malformed callback data")

// Callback is decoded inline button data.
type Callback struct {
	Action  string
	GroupID int64

	// Details only.
	CycleID int64
	Page    int

	// Import only.
	Amount int64
}

// DetailsCallback encodes a details page request.
func DetailsCallback(groupID, cycleID int64, page int) string {
	return fmt.Sprintf("%s_%d_%d_%d", ActionDetails, groupID, cycleID, page)
}

// ImportCallback encodes a carry-over import request.
func ImportCallback(groupID, amount int64) string {
	return fmt.Sprintf("%s_%d_%d", ActionImport, groupID, amount)
}

// ParseCallback decodes data produced by DetailsCallback or ImportCallback.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, "_")
	nums := make([]int64, 0, len(parts)-1)
	for _, p := range parts[1:] {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		nums = append(nums, n)
	}

	switch {
	case parts[0] == ActionDetails && len(nums) == 3:
		if nums[2] < 1 {
			return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
		}
		return Callback{Action: ActionDetails, GroupID: nums[0], CycleID: nums[1], Page: int(nums[2])}, nil
	case parts[0] == ActionImport && len(nums) == 2:
		return Callback{Action: ActionImport, GroupID: nums[0], Amount: nums[1]}, nil
	default:
		return Callback{}, fmt.Errorf("%w: %q", ErrBadCallback, data)
	}
}
