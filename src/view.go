package src

import (
	"github.com/Protocol-Lattice/lattice-pymaker/src/ui"
)

func (m *model) View() string {
	return ui.Render(m.state(), m.style)
}

func (m *model) state() ui.State {
	mode := m.mode
	if mode == ui.ModeChat && m.asking != askNone {
		mode = ui.ModeAsk
	}
	return ui.State{
		Mode:       mode,
		SessionID:  m.pipe.SessionID(),
		Model:      m.modelName,
		ScriptsDir: m.scriptsDir,
		Counters: ui.Counters{
			Requests:  m.metrics.TotalRequests,
			Succeeded: m.metrics.SuccessfulExecutions,
			Failed:    m.metrics.FailedExecutions,
			APIErrors: m.metrics.APIErrors,
		},
		Question:     m.question,
		IsThinking:   m.isThinking,
		ThinkingText: m.thinking,
		History:      m.history,
		TextArea:     m.textarea,
		Viewport:     m.viewport,
		Spinner:      m.spinner,
	}
}
