package intake

import (
	"context"
	"fmt"
	"strings"

	"carvalue-api/internal/model"
)

const (
	cmdStart  = "/start"
	cmdHelp   = "/help"
	cmdCancel = "/cancel"
	cmdQuota  = "/quota"
)

// command recognizes "/name" and "/name@bot" forms.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.ToLower(strings.Fields(text)[0])
	if i := strings.IndexByte(name, '@'); i > 0 {
		name = name[:i]
	}
	switch name {
	case cmdStart, cmdHelp, cmdCancel, cmdQuota:
		return name, true
	}
	return "", false
}

func (m *Machine) command(ctx context.Context, identity, cmd string) Reply {
	switch cmd {
	case cmdCancel:
		unlock := m.locks.Lock(identity)
		err := m.store.Delete(ctx, identity)
		unlock()
		if err != nil {
			m.logger.Error(ctx, "failed to cancel intake", "identity", identity, "error", err)
			return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
		}
		return Reply{Kind: KindCancelled, State: model.StateIdle, Message: msgCancelled}

	case cmdQuota:
		_, n, err := m.Remaining(ctx, identity)
		if err != nil {
			m.logger.Error(ctx, "quota check failed", "identity", identity, "error", err)
			return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
		}
		state := m.currentState(ctx, identity)
		return Reply{Kind: KindQuota, State: state, Message: quotaMessage(n), Remaining: intPtr(n)}

	default:
		state := m.currentState(ctx, identity)
		r := prompt(model.StateIdle)
		r.State = state
		if state != model.StateIdle {
			r.Message = msgPrompt + " " + prompt(state).Message
		}
		return r
	}
}

func (m *Machine) currentState(ctx context.Context, identity string) model.IntakeState {
	unlock := m.locks.Lock(identity)
	defer unlock()
	p, err := m.load(ctx, identity)
	if err != nil {
		return model.StateIdle
	}
	return p.State
}

func quotaMessage(n int) string {
	if n == 0 {
		return msgQuotaExceeded
	}
	return fmt.Sprintf("Evaluations left today: %d", n)
}
