package dialogue

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync/atomic"

	"github.com/barberbook/barberbook/services/chatbot-service/internal/session"
)

// StaffPicker resolves "any available" to one concrete staff member. options is never empty.
type StaffPicker interface {
	Pick(sender string, options []session.Option) session.Option
}

type FirstMatch struct{}

func (FirstMatch) Pick(_ string, options []session.Option) session.Option {
	return options[0]
}

type RoundRobin struct {
	next atomic.Uint64
}

func (p *RoundRobin) Pick(_ string, options []session.Option) session.Option {
	n := p.next.Add(1) - 1
	return options[n%uint64(len(options))]
}

type Random struct{}

func (Random) Pick(_ string, options []session.Option) session.Option {
	return options[rand.IntN(len(options))]
}

// NewStaffPicker maps ANY_STAFF_POLICY values to a picker.
func NewStaffPicker(policy string) (StaffPicker, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "first", "first-match":
		return FirstMatch{}, nil
	case "round-robin", "roundrobin":
		return &RoundRobin{}, nil
	case "random":
		return Random{}, nil
	default:
		return nil, fmt.Errorf("unknown staff policy %q", policy)
	}
}
