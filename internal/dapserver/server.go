// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package dapserver is the editor-facing endpoint of the bridge: it reads DAP
// requests from a stream, dispatches them to the session and streams DAP events
// back. Message framing is handled entirely by the go-dap library.
package dapserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/session"
)

// Server serves one editor connection.
type Server struct {
	log logr.Logger

	reader *bufio.Reader
	writer io.Writer

	// writeMu serializes event and response writes onto the stream.
	writeMu sync.Mutex
	seq     int

	mu      sync.Mutex
	session *session.Session
	done    bool
}

// New creates a server reading requests from r and writing messages to w.
func New(r io.Reader, w io.Writer, log logr.Logger) *Server {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Server{
		log:    log,
		reader: bufio.NewReader(r),
		writer: w,
	}
}

// Run reads and dispatches requests until the editor disconnects. Returns nil
// on clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	defer s.shutdownSession()

	for {
		msg, readErr := dap.ReadProtocolMessage(s.reader)
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || s.isDone() {
				s.log.Info("Editor disconnected")
				return nil
			}
			var decodeErr *dap.DecodeProtocolMessageFieldError
			if errors.As(readErr, &decodeErr) {
				s.log.Info("Dropping malformed request", "error", readErr.Error())
				continue
			}
			return readErr
		}

		request, isRequest := msg.(dap.RequestMessage)
		if !isRequest {
			s.log.Info("Dropping non-request message from editor")
			continue
		}

		if s.dispatchInline(request) {
			if s.isDone() {
				return nil
			}
			continue
		}

		// Requests that may block on the engine run concurrently so that
		// pause and disconnect stay deliverable.
		go s.dispatch(ctx, request)
	}
}

// dispatchInline handles the requests that must not run concurrently with the
// rest of the session lifecycle. Returns false when the request belongs to the
// concurrent dispatcher.
func (s *Server) dispatchInline(request dap.RequestMessage) bool {
	switch r := request.(type) {
	case *dap.InitializeRequest:
		s.onInitialize(r)
	case *dap.LaunchRequest:
		s.onLaunch(r)
	case *dap.AttachRequest:
		s.onAttach(r)
	case *dap.ConfigurationDoneRequest:
		s.respond(&dap.ConfigurationDoneResponse{Response: s.newResponse(r.GetRequest())})
	case *dap.DisconnectRequest:
		s.onDisconnect(r)
	case *dap.TerminateRequest:
		s.onTerminate(r)
	default:
		return false
	}
	return true
}

func (s *Server) dispatch(ctx context.Context, request dap.RequestMessage) {
	switch r := request.(type) {
	case *dap.SetBreakpointsRequest:
		s.onSetBreakpoints(ctx, r)
	case *dap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpoints(ctx, r)
	case *dap.SetDataBreakpointsRequest:
		s.onSetDataBreakpoints(r)
	case *dap.SetInstructionBreakpointsRequest:
		s.onSetInstructionBreakpoints(r)
	case *dap.ThreadsRequest:
		s.onThreads(r)
	case *dap.StackTraceRequest:
		s.onStackTrace(ctx, r)
	case *dap.ScopesRequest:
		s.onScopes(r)
	case *dap.VariablesRequest:
		s.onVariables(ctx, r)
	case *dap.EvaluateRequest:
		s.onEvaluate(ctx, r)
	case *dap.SourceRequest:
		s.onSource(ctx, r)
	case *dap.ContinueRequest:
		s.onContinue(ctx, r)
	case *dap.NextRequest:
		s.onNext(ctx, r)
	case *dap.StepInRequest:
		s.onStepIn(ctx, r)
	case *dap.StepOutRequest:
		s.onStepOut(ctx, r)
	case *dap.PauseRequest:
		s.onPause(ctx, r)
	default:
		req := request.GetRequest()
		s.log.V(1).Info("Rejecting unsupported request", "command", req.Command)
		s.respondError(req, "unsupported request")
	}
}

func (s *Server) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Server) markDone() {
	s.mu.Lock()
	s.done = true
	s.mu.Unlock()
}

func (s *Server) currentSession() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Server) shutdownSession() {
	if sess := s.currentSession(); sess != nil {
		sess.Shutdown(context.Background())
	}
}

// nextSeq returns the next outbound sequence number.
func (s *Server) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Server) write(msg dap.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if writeErr := dap.WriteProtocolMessage(s.writer, msg); writeErr != nil {
		s.log.Error(writeErr, "Failed to write message to editor")
	}
}

func (s *Server) newResponse(request *dap.Request) dap.Response {
	s.writeMu.Lock()
	seq := s.nextSeq()
	s.writeMu.Unlock()

	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "response"},
		Command:         request.Command,
		RequestSeq:      request.Seq,
		Success:         true,
	}
}

func (s *Server) respond(response dap.Message) {
	s.write(response)
}

func (s *Server) respondError(request *dap.Request, message string) {
	response := s.newResponse(request)
	response.Success = false
	response.Message = message
	s.write(&dap.ErrorResponse{Response: response})
}

func (s *Server) newEvent(event string) dap.Event {
	s.writeMu.Lock()
	seq := s.nextSeq()
	s.writeMu.Unlock()

	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: "event"},
		Event:           event,
	}
}
