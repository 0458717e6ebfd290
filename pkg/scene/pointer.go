package scene

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ritzau/neural-portfolio/pkg/camera"
)

// Pointer event kinds
const (
	PointerDown   = "down"
	PointerMove   = "move"
	PointerUp     = "up"
	PointerCancel = "cancel"
	PointerEnter  = "enter"
	PointerLeave  = "leave"
)

// PointerEvent is a pointer event from the host input system. X and Y are in
// normalized device coordinates.
type PointerEvent struct {
	Kind   string  `json:"kind" validate:"required,oneof=down move up cancel enter leave"`
	NodeID string  `json:"nodeId" validate:"required_if=Kind down,required_if=Kind enter,required_if=Kind leave"`
	X      float64 `json:"x" validate:"gte=-1,lte=1"`
	Y      float64 `json:"y" validate:"gte=-1,lte=1"`
}

var validate = validator.New()

// Pointer dispatches a pointer event. Events on unknown nodes are ignored.
func (s *Scene) Pointer(ev PointerEvent) error {
	if err := validate.Struct(ev); err != nil {
		return fmt.Errorf("invalid pointer event: %w", describe(err))
	}

	ndc := camera.NDC{X: ev.X, Y: ev.Y}
	switch ev.Kind {
	case PointerDown:
		if !s.has(ev.NodeID) {
			return nil
		}
		s.input.PointerDown(ev.NodeID, ndc)
	case PointerMove:
		s.input.PointerMove(ndc)
	case PointerUp:
		s.input.PointerUp()
	case PointerCancel:
		s.input.PointerCancel()
	case PointerEnter:
		if !s.has(ev.NodeID) {
			return nil
		}
		s.input.PointerEnter(ev.NodeID)
	case PointerLeave:
		s.input.PointerLeave(ev.NodeID)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must be in [-1, 1]", fe.Field()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
