/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package tcp

import "github.com/hk-project/hkgo/pkg/vfs"

// Input processes one received segment against the TCB's current state,
// dispatching to the per-state handler in the §4.4 table. Protocol
// violations are dropped silently, never propagated, per the error
// taxonomy's "protocol violation" class.
func (t *TCB) Input(seg Segment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case SynSent:
		t.processSynSent(seg)
	case Established:
		t.processEstablished(seg)
	case FinWait1:
		t.processFinWait1(seg)
	case FinWait2:
		t.processFinWait2(seg)
	case CloseWait:
		t.processCloseWait(seg)
	case LastAck:
		t.processLastAck(seg)
	case TimeWait:
		t.processTimeWait(seg)
	case Listen, SynReceived, Closing:
		// Accept queue management and simultaneous-close handling are
		// out of scope; these states are recognized but not driven.
	default:
	}
}

func (t *TCB) processSynSent(seg Segment) {
	if seg.Flags.Has(FlagACK) && seg.Ack != t.SndNXT {
		if !seg.Flags.Has(FlagRST) {
			t.emit(FlagRST, nil)
		}
		return
	}
	if seg.Flags.Has(FlagRST) {
		t.setState(Closed)
		t.setError(vfs.ECONNREFUSED)
		t.wake(t.WakeConnect)
		return
	}
	if seg.Flags.Has(FlagSYN) && seg.Flags.Has(FlagACK) {
		t.IRS = seg.Seq
		t.RcvNXT = seg.Seq + 1
		t.SndUNA = seg.Ack
		t.SndWND = seg.Window
		t.setState(Established)
		t.emit(0, nil)
		t.wake(t.WakeConnect)
	}
}

func (t *TCB) processEstablished(seg Segment) {
	if seg.Flags.Has(FlagRST) {
		t.setState(Closed)
		t.setError(vfs.ECONNRESET)
		t.wakeAll()
		return
	}
	if seg.Flags.Has(FlagACK) && seg.Ack-t.SndUNA <= t.SndNXT-t.SndUNA {
		t.SndUNA = seg.Ack
		t.PruneRetransmit(seg.Ack)
		t.SndWND = seg.Window
		t.wake(t.WakeTX)
	}
	if len(seg.Payload) > 0 {
		if seg.Seq == t.RcvNXT {
			if t.Deliver != nil {
				t.Deliver(seg.Payload)
			}
			t.RcvNXT += uint32(len(seg.Payload))
			t.emit(0, nil)
			t.wake(t.WakeRX)
		} else if seg.Seq-t.RcvNXT < 1<<31 {
			t.OOO[seg.Seq] = seg.Payload
			t.emit(0, nil)
		}
	}
	if seg.Flags.Has(FlagFIN) {
		t.RcvNXT++
		t.setState(CloseWait)
		t.emit(0, nil)
		t.setEOF()
		t.wake(t.WakeRX)
	}
}

func (t *TCB) processFinWait1(seg Segment) {
	if seg.Flags.Has(FlagRST) {
		t.setState(Closed)
		t.wakeAll()
		return
	}
	if seg.Flags.Has(FlagACK) && seg.Ack == t.SndNXT {
		t.setState(FinWait2)
	}
	if seg.Flags.Has(FlagFIN) {
		t.RcvNXT++
		if t.state == FinWait2 {
			t.setState(TimeWait)
		} else {
			t.setState(Closing)
		}
		t.emit(0, nil)
		t.setEOF()
	}
}

func (t *TCB) processFinWait2(seg Segment) {
	if seg.Flags.Has(FlagFIN) {
		t.RcvNXT++
		t.setState(TimeWait)
		t.emit(0, nil)
		t.setEOF()
		t.wakeAll()
	}
}

func (t *TCB) processCloseWait(seg Segment) {
	if seg.Flags.Has(FlagRST) {
		t.setState(Closed)
		t.wakeAll()
	}
}

func (t *TCB) processLastAck(seg Segment) {
	if seg.Flags.Has(FlagACK) {
		t.setState(Closed)
		t.wakeAll()
	}
}

func (t *TCB) processTimeWait(seg Segment) {
	if seg.Flags.Has(FlagFIN) {
		t.emit(0, nil)
	}
}

func (t *TCB) wakeAll() {
	t.wake(t.WakeRX)
	t.wake(t.WakeTX)
	t.wake(t.WakeConnect)
}
