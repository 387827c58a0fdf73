package machine

import (
	"fmt"

	"github.com/aykevl/emculator/logger"
)

// Run steps the machine until it stops for any reason other than having
// simply completed an instruction: firmware exit, a halt request, a
// breakpoint, or a fault. At LogInstrs a register dump is logged after every
// step; at LogCallsSP only after a step that changed SP. LogCalls adds no
// per-step logging.
func (m *Machine) Run() RunStatus {
	for {
		spBefore := m.regs.SP()

		status := m.Step()

		if m.logLevel >= LogInstrs || (m.logLevel >= LogCallsSP && m.regs.SP() != spBefore) {
			m.log(m.logLevel, m.registerDump())
		}

		switch status {
		case StatusOK:
			continue
		case StatusExit:
			return status
		case StatusHalt, StatusBreak:
			return status
		case StatusMem, StatusPC, StatusDivZero, StatusUndefined:
			m.log(logger.Allow, fmt.Sprintf("fatal: %s at pc=0x%08x", status, m.regs.PC()))
			m.logBacktrace()
			return status
		default:
			return status
		}
	}
}

func (m *Machine) registerDump() string {
	s := fmt.Sprintf("pc=0x%08x sp=0x%08x lr=0x%08x %s", m.regs.PC(), m.regs.SP(), m.regs.LR(), m.status.String())
	for i := 0; i < 13; i++ {
		s += fmt.Sprintf(" r%d=0x%08x", i, m.regs.Read(i))
	}
	return s
}

func (m *Machine) logBacktrace() {
	for i, f := range m.Backtrace() {
		m.log(logger.Allow, fmt.Sprintf("  #%d pc=0x%08x sp=0x%08x", i, f.PC, f.SP))
	}
}
