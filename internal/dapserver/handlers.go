// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package dapserver

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/go-dap"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/breakpoints"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/config"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/session"
)

func (s *Server) onInitialize(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{
		Response: s.newResponse(request.GetRequest()),
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest:   true,
			SupportsConditionalBreakpoints:     true,
			SupportsHitConditionalBreakpoints:  true,
			SupportsLogPoints:                  true,
			SupportsEvaluateForHovers:          true,
			ExceptionBreakpointFilters: []dap.ExceptionBreakpointsFilter{
				{Filter: "all", Label: "All Exceptions"},
				{Filter: "uncaught", Label: "Uncaught Exceptions", Default: true},
			},
		},
	}
	s.respond(response)

	s.write(&dap.InitializedEvent{Event: s.newEvent("initialized")})
}

// startSession parses the configuration and starts the session. It reports
// failures to the editor itself (an error response, the detailed reason as
// output, and a single terminated event) and returns false.
func (s *Server) startSession(request *dap.Request, rawArgs json.RawMessage) bool {
	var cfg config.Config
	if unmarshalErr := json.Unmarshal(rawArgs, &cfg); unmarshalErr != nil {
		s.respondError(request, "invalid launch configuration: "+unmarshalErr.Error())
		return false
	}

	sess := session.New(&cfg, s, s.log)

	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()

	if startErr := sess.Start(context.Background()); startErr != nil {
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()

		s.Output("stderr", startErr.Error()+"\n", 0, nil)
		s.respondError(request, startErr.Error())
		s.Terminated()
		return false
	}

	return true
}

func (s *Server) onLaunch(request *dap.LaunchRequest) {
	if s.startSession(request.GetRequest(), request.Arguments) {
		s.respond(&dap.LaunchResponse{Response: s.newResponse(request.GetRequest())})
	}
}

func (s *Server) onAttach(request *dap.AttachRequest) {
	if s.startSession(request.GetRequest(), request.Arguments) {
		s.respond(&dap.AttachResponse{Response: s.newResponse(request.GetRequest())})
	}
}

func (s *Server) onDisconnect(request *dap.DisconnectRequest) {
	s.shutdownSession()
	s.respond(&dap.DisconnectResponse{Response: s.newResponse(request.GetRequest())})
	s.markDone()
}

func (s *Server) onTerminate(request *dap.TerminateRequest) {
	s.shutdownSession()
	s.respond(&dap.TerminateResponse{Response: s.newResponse(request.GetRequest())})
	s.markDone()
}

func (s *Server) onSetBreakpoints(ctx context.Context, request *dap.SetBreakpointsRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	path := request.Arguments.Source.Path
	desired := make([]breakpoints.Desired, 0, len(request.Arguments.Breakpoints))
	for _, wanted := range request.Arguments.Breakpoints {
		hitLimit := 0
		if wanted.HitCondition != "" {
			if parsed, parseErr := strconv.Atoi(wanted.HitCondition); parseErr == nil && parsed > 0 {
				hitLimit = parsed
			}
		}
		desired = append(desired, breakpoints.Desired{
			Path:       path,
			Line:       wanted.Line,
			Column:     wanted.Column,
			Condition:  wanted.Condition,
			LogMessage: wanted.LogMessage,
			HitLimit:   hitLimit,
		})
	}

	realized := sess.Breakpoints().SetBreakpoints(ctx, path, desired)

	response := &dap.SetBreakpointsResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Breakpoints = make([]dap.Breakpoint, 0, len(realized))
	for _, bp := range realized {
		line := bp.ActualLine
		if line == 0 {
			line = bp.Line
		}
		response.Body.Breakpoints = append(response.Body.Breakpoints, dap.Breakpoint{
			Id:       bp.Id,
			Verified: bp.Verified,
			Line:     line,
			Source:   &dap.Source{Path: path},
		})
	}
	s.respond(response)
}

func (s *Server) onSetExceptionBreakpoints(ctx context.Context, request *dap.SetExceptionBreakpointsRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	pauseOnAll := false
	pauseOnUncaught := false
	for _, filter := range request.Arguments.Filters {
		switch filter {
		case "all":
			pauseOnAll = true
		case "uncaught":
			pauseOnUncaught = true
		}
	}

	if updateErr := sess.SetExceptionBreakpoints(ctx, pauseOnAll, pauseOnUncaught); updateErr != nil {
		s.log.Info("Failed to configure exception pausing", "error", updateErr.Error())
	}

	s.respond(&dap.SetExceptionBreakpointsResponse{Response: s.newResponse(request.GetRequest())})
}

// The engine has no data breakpoint support; everything comes back unverified.
func (s *Server) onSetDataBreakpoints(request *dap.SetDataBreakpointsRequest) {
	response := &dap.SetDataBreakpointsResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i := range response.Body.Breakpoints {
		response.Body.Breakpoints[i] = dap.Breakpoint{Verified: false, Message: "data breakpoints are not supported"}
	}
	s.respond(response)
}

func (s *Server) onSetInstructionBreakpoints(request *dap.SetInstructionBreakpointsRequest) {
	response := &dap.SetInstructionBreakpointsResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(request.Arguments.Breakpoints))
	for i := range response.Body.Breakpoints {
		response.Body.Breakpoints[i] = dap.Breakpoint{Verified: false, Message: "instruction breakpoints are not supported"}
	}
	s.respond(response)
}

func (s *Server) onThreads(request *dap.ThreadsRequest) {
	sess := s.currentSession()
	response := &dap.ThreadsResponse{Response: s.newResponse(request.GetRequest())}
	if sess != nil {
		for _, adapter := range sess.AllThreads() {
			response.Body.Threads = append(response.Body.Threads, dap.Thread{
				Id:   adapter.Id,
				Name: adapter.Name,
			})
		}
	}
	if response.Body.Threads == nil {
		response.Body.Threads = []dap.Thread{}
	}
	s.respond(response)
}

func (s *Server) onStackTrace(ctx context.Context, request *dap.StackTraceRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	thread, found := sess.FindThread(request.Arguments.ThreadId)
	if !found {
		s.respondError(request.GetRequest(), "unknown thread")
		return
	}
	sess.SetActiveThread(thread.Id)

	frames, traceErr := thread.StackTrace(ctx, request.Arguments.StartFrame, request.Arguments.Levels)
	if traceErr != nil {
		s.respondError(request.GetRequest(), traceErr.Error())
		return
	}

	response := &dap.StackTraceResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.StackFrames = make([]dap.StackFrame, 0, len(frames))
	for _, frame := range frames {
		stackFrame := dap.StackFrame{
			Id:     frame.Id,
			Name:   frame.Name,
			Line:   frame.Line,
			Column: frame.Column,
		}
		if frame.Source != nil {
			stackFrame.Source = &dap.Source{Name: frame.Source.URL}
			if frame.Source.Path != "" {
				stackFrame.Source.Path = frame.Source.Path
			}
		}
		response.Body.StackFrames = append(response.Body.StackFrames, stackFrame)
	}
	response.Body.TotalFrames = len(response.Body.StackFrames)
	s.respond(response)
}

func (s *Server) onScopes(request *dap.ScopesRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	frame, found := sess.FindFrame(request.Arguments.FrameId)
	if !found {
		s.respondError(request.GetRequest(), "unknown frame")
		return
	}

	thread, threadFound := sess.FindThread(frame.ThreadId)
	if !threadFound {
		s.respondError(request.GetRequest(), "thread has exited")
		return
	}

	response := &dap.ScopesResponse{Response: s.newResponse(request.GetRequest())}
	for _, scope := range thread.Scopes(frame) {
		response.Body.Scopes = append(response.Body.Scopes, dap.Scope{
			Name:               scope.Name,
			VariablesReference: scope.VariablesReference,
			Expensive:          scope.Expensive,
		})
	}
	if response.Body.Scopes == nil {
		response.Body.Scopes = []dap.Scope{}
	}
	s.respond(response)
}

func (s *Server) onVariables(ctx context.Context, request *dap.VariablesRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	provider, found := sess.FindVariablesProvider(request.Arguments.VariablesReference)
	if !found {
		s.respondError(request.GetRequest(), "variables reference is no longer valid")
		return
	}

	variables, fetchErr := provider.FetchVariables(ctx)
	if fetchErr != nil {
		s.respondError(request.GetRequest(), fetchErr.Error())
		return
	}

	response := &dap.VariablesResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Variables = make([]dap.Variable, 0, len(variables))
	for _, variable := range variables {
		response.Body.Variables = append(response.Body.Variables, dap.Variable{
			Name:               variable.Name,
			Value:              variable.Value,
			VariablesReference: variable.VariablesReference,
		})
	}
	s.respond(response)
}

func (s *Server) onEvaluate(ctx context.Context, request *dap.EvaluateRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	var thread *session.ThreadAdapter
	if request.Arguments.FrameId != 0 {
		if frame, found := sess.FindFrame(request.Arguments.FrameId); found {
			thread, _ = sess.FindThread(frame.ThreadId)
		}
	}
	if thread == nil {
		active, found := sess.ActiveThread()
		if !found {
			s.respondError(request.GetRequest(), "no thread available for evaluation")
			return
		}
		thread = active
	}

	result, evalErr := thread.Evaluate(ctx, request.Arguments.Expression, request.Arguments.FrameId)
	if evalErr != nil {
		s.respondError(request.GetRequest(), evalErr.Error())
		return
	}

	response := &dap.EvaluateResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Result = result.Value
	response.Body.VariablesReference = result.VariablesReference
	s.respond(response)
}

func (s *Server) onSource(ctx context.Context, request *dap.SourceRequest) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	sourceReference := request.Arguments.SourceReference
	if sourceReference == 0 && request.Arguments.Source != nil {
		sourceReference = request.Arguments.Source.SourceReference
	}

	content, loadErr := sess.LoadSourceById(ctx, sourceReference)
	if loadErr != nil {
		s.respondError(request.GetRequest(), loadErr.Error())
		return
	}

	response := &dap.SourceResponse{Response: s.newResponse(request.GetRequest())}
	response.Body.Content = content
	s.respond(response)
}

func (s *Server) withThread(request dap.RequestMessage, threadId int, operation func(*session.ThreadAdapter) error) {
	sess := s.currentSession()
	if sess == nil {
		s.respondError(request.GetRequest(), "no debug session")
		return
	}

	thread, found := sess.FindThread(threadId)
	if !found {
		s.respondError(request.GetRequest(), "unknown thread")
		return
	}
	sess.SetActiveThread(threadId)

	if opErr := operation(thread); opErr != nil {
		s.respondError(request.GetRequest(), opErr.Error())
		return
	}

	switch request.(type) {
	case *dap.ContinueRequest:
		s.respond(&dap.ContinueResponse{Response: s.newResponse(request.GetRequest())})
	case *dap.NextRequest:
		s.respond(&dap.NextResponse{Response: s.newResponse(request.GetRequest())})
	case *dap.StepInRequest:
		s.respond(&dap.StepInResponse{Response: s.newResponse(request.GetRequest())})
	case *dap.StepOutRequest:
		s.respond(&dap.StepOutResponse{Response: s.newResponse(request.GetRequest())})
	case *dap.PauseRequest:
		s.respond(&dap.PauseResponse{Response: s.newResponse(request.GetRequest())})
	}
}

func (s *Server) onContinue(ctx context.Context, request *dap.ContinueRequest) {
	s.withThread(request, request.Arguments.ThreadId, func(thread *session.ThreadAdapter) error {
		return thread.Resume(ctx)
	})
}

func (s *Server) onNext(ctx context.Context, request *dap.NextRequest) {
	s.withThread(request, request.Arguments.ThreadId, func(thread *session.ThreadAdapter) error {
		return thread.Step(ctx, actors.StepNext)
	})
}

func (s *Server) onStepIn(ctx context.Context, request *dap.StepInRequest) {
	s.withThread(request, request.Arguments.ThreadId, func(thread *session.ThreadAdapter) error {
		return thread.Step(ctx, actors.StepIn)
	})
}

func (s *Server) onStepOut(ctx context.Context, request *dap.StepOutRequest) {
	s.withThread(request, request.Arguments.ThreadId, func(thread *session.ThreadAdapter) error {
		return thread.Step(ctx, actors.StepOut)
	})
}

func (s *Server) onPause(ctx context.Context, request *dap.PauseRequest) {
	s.withThread(request, request.Arguments.ThreadId, func(thread *session.ThreadAdapter) error {
		return thread.Pause(ctx)
	})
}
