// Package gdb implements a GDB Remote Serial Protocol server exposing the
// simulator to arm-none-eabi-gdb over TCP.
package gdb

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/retroenv/retrogolib/log"

	"github.com/tinunadno/stm32-emulator/internal/core"
	"github.com/tinunadno/stm32-emulator/internal/simulator"
	"github.com/tinunadno/stm32-emulator/internal/status"
)

// DefaultPort is the conventional GDB stub listening port.
const DefaultPort = 3333

const (
	maxMemReadLen   = 1024
	supportedReply  = "PacketSize=1000;qXfer:features:read+"
	stopReplyTrap   = "S05" // SIGTRAP
	stopReplySigint = "S02" // SIGINT
)

// Stub is the RSP server. It serves one client at a time and accepts
// reconnects in a loop.
type Stub struct {
	sim      *simulator.Simulator
	port     int
	logger   *log.Logger
	listener net.Listener
}

// New returns a stub bound to the given simulator.
func New(sim *simulator.Simulator, port int, logger *log.Logger) *Stub {
	return &Stub{
		sim:    sim,
		port:   port,
		logger: logger,
	}
}

// Run listens on the configured port and serves client sessions until the
// listener fails.
func (s *Stub) Run() error {
	listener, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", s.port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.port, err)
	}
	s.listener = listener
	defer listener.Close()

	s.logger.Info("GDB stub listening", log.Int("port", s.port))
	s.logger.Info("Connect with: arm-none-eabi-gdb -ex 'target remote :" +
		strconv.Itoa(s.port) + "' firmware.elf")

	for {
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("accepting connection: %w", err)
		}
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}

		s.logger.Info("GDB connected", log.String("remote", conn.RemoteAddr().String()))
		s.serve(conn)
		_ = conn.Close()
		s.logger.Info("GDB disconnected")
	}
}

// Close shuts the listener down, ending Run.
func (s *Stub) Close() error {
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

type session struct {
	stub *Stub
	sim  *simulator.Simulator
	conn net.Conn
	r    *bufio.Reader
}

// serve runs the packet loop for one client. Exported RSP semantics live in
// the handle* methods; unknown packets reply empty.
func (s *Stub) serve(conn net.Conn) {
	sess := &session{
		stub: s,
		sim:  s.sim,
		conn: conn,
		r:    bufio.NewReader(conn),
	}
	sess.loop()
}

func (sess *session) loop() {
	for {
		packet, err := recvPacket(sess.r, sess.conn)
		if err != nil {
			return
		}

		if packet == string(rune(interruptByte)) {
			sess.sim.Halt()
			sess.send(stopReplySigint)
			continue
		}
		if packet == "" {
			sess.send("")
			continue
		}

		cmd := packet[0]
		args := packet[1:]

		switch cmd {
		case '?':
			sess.send(stopReplyTrap)
		case 'g':
			sess.handleReadRegs()
		case 'G':
			sess.handleWriteRegs(args)
		case 'p':
			sess.handleReadReg(args)
		case 'P':
			sess.handleWriteReg(args)
		case 'm':
			sess.handleReadMem(args)
		case 'M':
			sess.handleWriteMem(args)
		case 'c':
			sess.handleContinue(args)
		case 's':
			sess.handleStep(args)
		case 'Z':
			sess.handleSetBreakpoint(args)
		case 'z':
			sess.handleRemoveBreakpoint(args)
		case 'H', 'T':
			// Thread select / thread alive: single-threaded target.
			sess.send("OK")
		case 'D':
			sess.send("OK")
			return
		case 'k':
			return
		case 'q':
			sess.handleQuery(args)
		default:
			sess.send("")
		}
	}
}

func (sess *session) send(payload string) {
	if err := sendPacket(sess.r, sess.conn, payload); err != nil {
		sess.stub.logger.Debug("Packet send failed", log.Err(err))
	}
}

// handleReadRegs replies with r0..r15 then xpsr, 136 hex chars.
func (sess *session) handleReadRegs() {
	state := &sess.sim.Core.State
	var b strings.Builder
	for i := 0; i < 16; i++ {
		b.WriteString(encodeU32LE(state.R[i]))
	}
	b.WriteString(encodeU32LE(state.XPSR))
	sess.send(b.String())
}

func (sess *session) handleWriteRegs(args string) {
	if len(args) < 17*8 {
		sess.send("E00")
		return
	}
	state := &sess.sim.Core.State
	for i := 0; i < 16; i++ {
		val, err := decodeU32LE(args[i*8:])
		if err != nil {
			sess.send("E00")
			return
		}
		state.R[i] = val
	}
	val, err := decodeU32LE(args[16*8:])
	if err != nil {
		sess.send("E00")
		return
	}
	state.XPSR = val
	sess.send("OK")
}

func (sess *session) handleReadReg(args string) {
	n, err := strconv.ParseUint(args, 16, 32)
	if err != nil || n > 16 {
		sess.send("E00")
		return
	}
	state := &sess.sim.Core.State
	if n == 16 {
		sess.send(encodeU32LE(state.XPSR))
		return
	}
	sess.send(encodeU32LE(state.R[n]))
}

func (sess *session) handleWriteReg(args string) {
	idx, value, ok := strings.Cut(args, "=")
	if !ok {
		sess.send("E00")
		return
	}
	n, err := strconv.ParseUint(idx, 16, 32)
	if err != nil || n > 16 {
		sess.send("E00")
		return
	}
	val, err := decodeU32LE(value)
	if err != nil {
		sess.send("E00")
		return
	}

	state := &sess.sim.Core.State
	if n == 16 {
		state.XPSR = val
	} else {
		state.R[n] = val
	}
	sess.send("OK")
}

// handleReadMem serves m<addr>,<len>: hex bytes read through the bus, the
// length capped at 1024.
func (sess *session) handleReadMem(args string) {
	addrStr, lenStr, ok := strings.Cut(args, ",")
	if !ok {
		sess.send("E00")
		return
	}
	addr, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}
	length, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}
	if length > maxMemReadLen {
		length = maxMemReadLen
	}

	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte(sess.sim.Bus.Read(uint32(addr)+uint32(i), 1))
	}
	sess.send(hex.EncodeToString(buf))
}

// handleWriteMem serves M<addr>,<len>:<hex> through the bus, one byte at a
// time.
func (sess *session) handleWriteMem(args string) {
	head, data, ok := strings.Cut(args, ":")
	if !ok {
		sess.send("E00")
		return
	}
	addrStr, lenStr, ok := strings.Cut(head, ",")
	if !ok {
		sess.send("E00")
		return
	}
	addr, err := strconv.ParseUint(addrStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}
	length, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}
	raw, err := hex.DecodeString(data)
	if err != nil || uint64(len(raw)) < length {
		sess.send("E00")
		return
	}

	for i := uint64(0); i < length; i++ {
		if st := sess.sim.Bus.Write(uint32(addr)+uint32(i), uint32(raw[i]), 1); st != status.OK {
			sess.send("E01")
			return
		}
	}
	sess.send("OK")
}

// interruptPollInterval is how many core steps run between socket polls
// during continue. Each poll costs up to interruptPollTimeout.
const (
	interruptPollInterval = 4096
	interruptPollTimeout  = time.Millisecond
)

// handleContinue serves c[addr]: run until a breakpoint, an error, or a
// 0x03 from the client. The socket is polled between batches of core
// steps.
func (sess *session) handleContinue(args string) {
	if args != "" {
		if addr, err := strconv.ParseUint(args, 16, 32); err == nil {
			sess.sim.Core.State.R[core.RegPC] = uint32(addr) &^ 1
		}
	}

	sess.sim.ClearHalt()
	sess.sim.SetRunning(true)

	steps := 0
	for !sess.sim.Halted() {
		st := sess.sim.Step()

		steps++
		if steps%interruptPollInterval == 0 && sess.pollInterrupt() {
			sess.sim.Halt()
			break
		}

		if st != status.OK {
			break
		}
	}

	sess.sim.SetRunning(false)
	sess.send(stopReplyTrap)
}

func (sess *session) handleStep(args string) {
	if args != "" {
		if addr, err := strconv.ParseUint(args, 16, 32); err == nil {
			sess.sim.Core.State.R[core.RegPC] = uint32(addr) &^ 1
		}
	}

	sess.sim.ClearHalt()
	sess.sim.Step()
	sess.send(stopReplyTrap)
}

// pollInterrupt checks the socket for a pending 0x03, waiting at most
// interruptPollTimeout. A deadline in the past would suppress delivery of
// already-buffered bytes, so the poll uses a short future one.
func (sess *session) pollInterrupt() bool {
	if err := sess.conn.SetReadDeadline(time.Now().Add(interruptPollTimeout)); err != nil {
		return false
	}
	defer sess.conn.SetReadDeadline(time.Time{})

	b, err := sess.r.Peek(1)
	if err != nil || len(b) == 0 {
		return false
	}
	if b[0] != interruptByte {
		return false
	}
	_, _ = sess.r.ReadByte()
	return true
}

func (sess *session) handleSetBreakpoint(args string) {
	addr, ok := breakpointAddr(args)
	if !ok {
		sess.send("E00")
		return
	}
	if sess.sim.Debugger.Add(addr) != status.OK {
		sess.send("E01")
		return
	}
	sess.send("OK")
}

func (sess *session) handleRemoveBreakpoint(args string) {
	addr, ok := breakpointAddr(args)
	if !ok {
		sess.send("E00")
		return
	}
	if sess.sim.Debugger.Remove(addr) != status.OK {
		sess.send("E01")
		return
	}
	sess.send("OK")
}

// breakpointAddr parses the addr field of Z0,addr,kind / z0,addr,kind.
func breakpointAddr(args string) (uint32, bool) {
	parts := strings.Split(args, ",")
	if len(parts) < 2 {
		return 0, false
	}
	addr, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(addr), true
}

func (sess *session) handleQuery(args string) {
	switch {
	case strings.HasPrefix(args, "Supported"):
		sess.send(supportedReply)
	case strings.HasPrefix(args, "Rcmd,"):
		sess.handleMonitor(args[len("Rcmd,"):])
	case strings.HasPrefix(args, "Xfer:features:read:target.xml:"):
		sess.handleFeaturesXML(args[len("Xfer:features:read:target.xml:"):])
	case strings.HasPrefix(args, "Attached"):
		sess.send("1")
	case args == "C":
		sess.send("QC0")
	case strings.HasPrefix(args, "fThreadInfo"):
		sess.send("m0")
	case strings.HasPrefix(args, "sThreadInfo"):
		sess.send("l")
	default:
		sess.send("")
	}
}

// handleMonitor decodes the hex-encoded command behind GDB's "monitor" and
// recognizes halt / reset / reset halt. Unknown commands are accepted
// silently, matching openocd behavior that frontends rely on.
func (sess *session) handleMonitor(hexCmd string) {
	raw, err := hex.DecodeString(hexCmd)
	if err != nil {
		sess.send("E00")
		return
	}
	cmd := strings.TrimSpace(string(raw))

	switch cmd {
	case "halt":
		sess.sim.Halt()
	case "reset", "reset halt":
		sess.sim.Reset()
		sess.sim.Halt()
	}
	sess.send("OK")
}

// handleFeaturesXML serves a chunk of the target description. The reply is
// prefixed 'l' for the last chunk and 'm' when more data follows.
func (sess *session) handleFeaturesXML(args string) {
	offStr, lenStr, ok := strings.Cut(args, ",")
	if !ok {
		sess.send("E00")
		return
	}
	offset, err := strconv.ParseUint(offStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}
	length, err := strconv.ParseUint(lenStr, 16, 32)
	if err != nil {
		sess.send("E00")
		return
	}

	xmlLen := uint64(len(targetXML))
	if offset >= xmlLen {
		sess.send("l")
		return
	}

	avail := xmlLen - offset
	if avail > length {
		avail = length
	}

	prefix := "m"
	if offset+avail >= xmlLen {
		prefix = "l"
	}
	sess.send(prefix + targetXML[offset:offset+avail])
}
