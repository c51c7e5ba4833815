package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go1-control/internal/models"
)

// statePayload is the robot/state wire message. Pointers distinguish a
// missing field from a zero value.
type statePayload struct {
	BMS   *bmsPayload   `json:"bms"`
	Robot *robotPayload `json:"robot"`
}

type bmsPayload struct {
	SOC     *int `json:"soc"`
	Voltage int  `json:"voltage"`
	Current int  `json:"current"`
	Cycles  int  `json:"cycles"`
}

type robotPayload struct {
	DistanceWarning *distancePayload `json:"distanceWarning"`
	Mode            string           `json:"mode,omitempty"`
}

type distancePayload struct {
	Front *float64 `json:"front"`
	Left  *float64 `json:"left"`
	Right *float64 `json:"right"`
	Back  *float64 `json:"back,omitempty"`
}

// Stats counts decoded and dropped payloads
type Stats struct {
	Decoded int64
	Dropped int64
}

// Decoder turns raw telemetry payloads into RobotState snapshots
type Decoder struct {
	now     func() time.Time
	decoded int64
	dropped int64
}

// NewDecoder creates a decoder stamping states with now
func NewDecoder(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{now: now}
}

// Decode parses payload. Any missing required field or out-of-range value
// returns an error wrapping models.ErrDecode and no state.
func (d *Decoder) Decode(payload []byte) (*models.RobotState, error) {
	state, err := d.decode(payload)
	if err != nil {
		atomic.AddInt64(&d.dropped, 1)
		return nil, err
	}
	atomic.AddInt64(&d.decoded, 1)
	return state, nil
}

func (d *Decoder) decode(payload []byte) (*models.RobotState, error) {
	var msg statePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecode, err)
	}

	if msg.BMS == nil || msg.BMS.SOC == nil {
		return nil, missing("bms.soc")
	}
	soc := *msg.BMS.SOC
	if soc < 0 || soc > 100 {
		return nil, fmt.Errorf("%w: bms.soc %d outside [0, 100]", models.ErrDecode, soc)
	}

	if msg.Robot == nil || msg.Robot.DistanceWarning == nil {
		return nil, missing("robot.distanceWarning")
	}
	dw := msg.Robot.DistanceWarning

	front, err := proximity("front", dw.Front, false)
	if err != nil {
		return nil, err
	}
	left, err := proximity("left", dw.Left, false)
	if err != nil {
		return nil, err
	}
	right, err := proximity("right", dw.Right, false)
	if err != nil {
		return nil, err
	}
	back, err := proximity("back", dw.Back, true)
	if err != nil {
		return nil, err
	}

	var mode models.Mode
	if msg.Robot.Mode != "" {
		mode, err = models.ParseMode(msg.Robot.Mode)
		if err != nil {
			return nil, fmt.Errorf("%w: robot.mode: %v", models.ErrDecode, err)
		}
	}

	return &models.RobotState{
		Battery: models.BatteryState{
			SOC:       uint8(soc),
			VoltageMV: msg.BMS.Voltage,
			CurrentMA: msg.BMS.Current,
			Cycles:    msg.BMS.Cycles,
		},
		DistanceWarning: models.DistanceWarning{
			Front: front,
			Left:  left,
			Right: right,
			Back:  back,
		},
		Mode:       mode,
		ReceivedAt: d.now(),
	}, nil
}

// proximity validates one distance warning score. Optional scores default
// to 1.0 (clear).
func proximity(name string, v *float64, optional bool) (float64, error) {
	if v == nil {
		if optional {
			return 1.0, nil
		}
		return 0, missing("robot.distanceWarning." + name)
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return 0, fmt.Errorf("%w: robot.distanceWarning.%s %v outside [0, 1]", models.ErrDecode, name, *v)
	}
	return *v, nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing field %s", models.ErrDecode, field)
}

// Stats returns decode counters
func (d *Decoder) Stats() Stats {
	return Stats{
		Decoded: atomic.LoadInt64(&d.decoded),
		Dropped: atomic.LoadInt64(&d.dropped),
	}
}
