// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package session orchestrates one debug session: engine connection, target
// discovery, thread adapters with their pause state machines, and teardown.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-logr/logr"

	"github.com/firefox-devtools/vscode-firefox-debug/internal/breakpoints"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/config"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/launcher"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/rdp/actors"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/skipfiles"
	"github.com/firefox-devtools/vscode-firefox-debug/internal/sourcemaps"
	"github.com/firefox-devtools/vscode-firefox-debug/pkg/registry"
)

// ErrUnsupported indicates the engine lacks a required capability.
var ErrUnsupported = errors.New("the debug server is too old; please update the browser")

const launchWait = 10 * time.Second

// Session is the orchestrator of one debug session.
type Session struct {
	cfg *config.Config
	log logr.Logger

	sources     *sourcemaps.Manager
	skipFiles   *skipfiles.Manager
	breakpoints *breakpoints.Manager
	launcher    *launcher.Launcher

	conn *rdp.Connection
	root *actors.Root

	threads     *registry.Registry[*ThreadAdapter]
	descriptors *registry.Registry[*actors.Descriptor]
	frames      *registry.Registry[*FrameAdapter]
	variables   *registry.Registry[VariablesProvider]

	mu               sync.Mutex
	eventSink        EventSink
	threadsByTarget  map[string]*ThreadAdapter
	consolesByActor  map[string]*actors.Console
	sourceIds        map[string]int
	sourceActorsById map[int]string
	nextSourceId     int
	activeThreadId   int
	addonsActor      string
	terminated       bool
	tabsReloaded     bool
}

// New creates a session for the given configuration.
func New(cfg *config.Config, sink EventSink, log logr.Logger) *Session {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if sink == nil {
		sink = nopSink{}
	}

	sources := sourcemaps.NewManager(cfg.PathMapper(), sourcemaps.NewLoader(log), log)

	return &Session{
		cfg:              cfg,
		log:              log,
		sources:          sources,
		skipFiles:        skipfiles.NewManager(cfg.SkipRules(), log),
		breakpoints:      breakpoints.NewManager(sources, log),
		launcher:         launcher.New(log),
		threads:          registry.New[*ThreadAdapter](),
		descriptors:      registry.New[*actors.Descriptor](),
		frames:           registry.New[*FrameAdapter](),
		variables:        registry.New[VariablesProvider](),
		eventSink:        sink,
		threadsByTarget:  make(map[string]*ThreadAdapter),
		consolesByActor:  make(map[string]*actors.Console),
		sourceIds:        make(map[string]int),
		sourceActorsById: make(map[int]string),
		nextSourceId:     1,
	}
}

func (s *Session) sink() EventSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventSink
}

// Breakpoints exposes the breakpoint manager to the DAP endpoint.
func (s *Session) Breakpoints() *breakpoints.Manager {
	return s.breakpoints
}

// Sources exposes the source manager to the DAP endpoint.
func (s *Session) Sources() *sourcemaps.Manager {
	return s.sources
}

// Start connects to the engine, verifies its capabilities and begins target
// discovery. It returns once discovery is running; thread lifecycle continues
// asynchronously until Shutdown.
func (s *Session) Start(ctx context.Context) error {
	transport, connectErr := s.connect(ctx)
	if connectErr != nil {
		return fmt.Errorf("failed to connect to the debug server: %w", connectErr)
	}

	s.conn = rdp.NewConnection(transport, s.log)

	// The root proxy must be registered before the dispatcher starts, or the
	// engine's initial packet races the registration and is dropped.
	s.root = actors.NewRoot(s.conn, s.log)

	go func() {
		_ = s.conn.Run(context.Background())
	}()

	// Socket loss terminates the session unconditionally.
	go func() {
		<-s.conn.Done()
		s.onConnectionLost()
	}()

	initCtx, cancel := context.WithTimeout(ctx, launchWait)
	defer cancel()
	init, initErr := s.root.WaitForInit(initCtx)
	if initErr != nil {
		s.conn.Disconnect()
		return fmt.Errorf("timed out waiting for the debug server handshake: %w", initErr)
	}

	if !init.Traits.NativeLogpoints {
		s.conn.Disconnect()
		return ErrUnsupported
	}

	// The device description carries the engine version; log it and reject
	// engines below the supported platform generation.
	if subActors, fetchErr := s.root.FetchRoot(ctx); fetchErr == nil && subActors.DeviceActor != "" {
		device := actors.NewDevice(s.conn, subActors.DeviceActor, s.log)
		if description, descErr := device.GetDescription(ctx); descErr == nil {
			s.log.Info("Engine version", "version", description.Version, "platformVersion", description.PlatformVersion)
			if !supportedPlatformVersion(description.PlatformVersion) {
				s.conn.Disconnect()
				return ErrUnsupported
			}
		}
	}

	if init.Traits.SupportsEnableWindowGlobalThreadActors {
		if discoverErr := s.discoverModern(ctx); discoverErr != nil {
			s.conn.Disconnect()
			return discoverErr
		}
	} else {
		if discoverErr := s.discoverLegacy(ctx); discoverErr != nil {
			s.conn.Disconnect()
			return discoverErr
		}
	}

	// Remember the addons actor for the terminator fallback during shutdown.
	if subActors, fetchErr := s.root.FetchRoot(ctx); fetchErr == nil {
		s.mu.Lock()
		s.addonsActor = subActors.AddonsActor
		s.mu.Unlock()
	}

	return nil
}

// connect establishes the stream to the engine: plain attach, or launch with a
// port wait. When attach fails and a launch config exists, launch is the
// fallback.
func (s *Session) connect(ctx context.Context) (rdp.Transport, error) {
	address := s.cfg.Address()

	if s.cfg.Request == config.RequestAttach || s.cfg.Launch == nil {
		transport, dialErr := rdp.DialTCP(ctx, address)
		if dialErr == nil {
			return transport, nil
		}
		if s.cfg.Launch == nil {
			return nil, dialErr
		}
		s.log.Info("Attach failed, falling back to launch", "error", dialErr.Error())
	}

	if launchErr := s.launcher.Launch(ctx, s.cfg.Launch); launchErr != nil {
		return nil, launchErr
	}

	if waitErr := launcher.WaitForSocket(ctx, address, launchWait, s.log); waitErr != nil {
		return nil, waitErr
	}

	return rdp.DialTCP(ctx, address)
}

// discoverModern attaches the parent process descriptor and watches targets and
// resources through its watcher. Resources are watched only after the target
// watch completed, so early events are not missed.
func (s *Session) discoverModern(ctx context.Context) error {
	process, processErr := s.root.GetParentProcess(ctx)
	if processErr != nil {
		return fmt.Errorf("failed to get the parent process descriptor: %w", processErr)
	}

	descriptor := actors.NewDescriptor(s.conn, process.Actor, s.log)
	s.descriptors.Register(descriptor)

	watcher, watcherErr := descriptor.GetWatcher(ctx)
	if watcherErr != nil {
		return fmt.Errorf("failed to get the watcher: %w", watcherErr)
	}

	breakpointList, listErr := watcher.GetBreakpointList(ctx)
	if listErr != nil {
		return fmt.Errorf("failed to get the breakpoint list: %w", listErr)
	}
	s.breakpoints.AttachLister(breakpointList)

	watcher.OnTargetAvailable(s.onTargetAvailable)
	watcher.OnTargetDestroyed(s.onTargetDestroyed)

	if watchErr := watcher.WatchTargets(ctx, actors.TargetTypeFrame); watchErr != nil {
		return fmt.Errorf("failed to watch frame targets: %w", watchErr)
	}
	if watcher.Traits().ContentScript && s.cfg.Addon != nil {
		if watchErr := watcher.WatchTargets(ctx, actors.TargetTypeContentScript); watchErr != nil {
			s.log.Info("Failed to watch content script targets", "error", watchErr.Error())
		}
	}

	if watchErr := watcher.WatchResources(ctx, []actors.ResourceType{
		actors.ResourceConsoleMessage,
		actors.ResourceErrorMessage,
		actors.ResourceSource,
		actors.ResourceThreadState,
	}); watchErr != nil {
		return fmt.Errorf("failed to watch resources: %w", watchErr)
	}

	return nil
}

// discoverLegacy subscribes to the tab list and attaches each tab descriptor
// individually.
func (s *Session) discoverLegacy(ctx context.Context) error {
	attachTab := func(tab actors.TabDescriptorForm, reload bool) {
		if !s.tabMatches(tab.URL) {
			s.log.V(1).Info("Skipping filtered tab", "url", tab.URL)
			return
		}

		descriptor := actors.NewDescriptor(s.conn, tab.Actor, s.log)
		s.descriptors.Register(descriptor)

		// Discovery failures leave the tab unattached but never tear down the
		// session.
		go func() {
			tabCtx, cancel := context.WithTimeout(context.Background(), launchWait)
			defer cancel()

			watcher, watcherErr := descriptor.GetWatcher(tabCtx)
			if watcherErr != nil {
				s.log.Info("Failed to attach tab", "url", tab.URL, "error", watcherErr.Error())
				return
			}

			if breakpointList, listErr := watcher.GetBreakpointList(tabCtx); listErr == nil {
				s.breakpoints.AttachLister(breakpointList)
			}

			watcher.OnTargetAvailable(s.onTargetAvailable)
			watcher.OnTargetDestroyed(s.onTargetDestroyed)

			if watchErr := watcher.WatchTargets(tabCtx, actors.TargetTypeFrame); watchErr != nil {
				s.log.Info("Failed to watch tab targets", "url", tab.URL, "error", watchErr.Error())
				return
			}
			_ = watcher.WatchResources(tabCtx, []actors.ResourceType{
				actors.ResourceConsoleMessage,
				actors.ResourceErrorMessage,
				actors.ResourceSource,
				actors.ResourceThreadState,
			})

			if reload {
				if reloadErr := descriptor.Reload(tabCtx); reloadErr != nil {
					s.log.Info("Failed to reload tab", "url", tab.URL, "error", reloadErr.Error())
				}
			}
		}()
	}

	s.root.OnTabOpened(func(tab actors.TabDescriptorForm) {
		// reloadTabs applies only to the tabs found on the first pass after
		// connecting, not to tabs opened later.
		attachTab(tab, false)
	})

	tabs, listErr := s.root.ListTabs(ctx)
	if listErr != nil {
		return fmt.Errorf("failed to list tabs: %w", listErr)
	}

	reload := s.cfg.ReloadTabs && !s.tabsReloaded
	s.tabsReloaded = true
	for _, tab := range tabs {
		attachTab(tab, reload)
	}

	return nil
}

// tabMatches applies the session's tab include/exclude filters to a URL.
func (s *Session) tabMatches(url string) bool {
	stripped := sourcemaps.StripQuery(url)

	if len(s.cfg.TabFilter.Include) > 0 {
		included := false
		for _, pattern := range s.cfg.TabFilter.Include {
			if matched, _ := doublestar.Match(pattern, stripped); matched {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, pattern := range s.cfg.TabFilter.Exclude {
		if matched, _ := doublestar.Match(pattern, stripped); matched {
			return false
		}
	}
	return true
}

// targetMatches applies the session policy to a target form.
func (s *Session) targetMatches(form actors.TargetForm) bool {
	if form.IsFallbackExtensionDocument {
		return false
	}

	if s.cfg.Addon != nil && s.cfg.Addon.Id != "" {
		if form.AddonId != "" && form.AddonId != s.cfg.Addon.Id {
			return false
		}
	}

	if form.TargetType == string(actors.TargetTypeFrame) && form.URL != "" {
		return s.tabMatches(form.URL)
	}
	return true
}

// onTargetAvailable constructs and registers the thread adapter for a new
// target. Runs on the packet dispatcher.
func (s *Session) onTargetAvailable(form actors.TargetForm) {
	if !s.targetMatches(form) {
		s.log.V(1).Info("Ignoring filtered target", "url", form.URL, "targetType", form.TargetType)
		return
	}
	if form.ThreadActor == "" || form.ConsoleActor == "" {
		s.log.Info("Ignoring target without thread or console actor", "url", form.URL)
		return
	}

	s.mu.Lock()
	if _, exists := s.threadsByTarget[form.Actor]; exists {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	target := actors.NewTarget(s.conn, form, s.log)
	thread := actors.NewThread(s.conn, form.ThreadActor, s.log)
	console := actors.NewConsole(s.conn, form.ConsoleActor, s.log)

	adapter := newThreadAdapter(0, threadName(form), s, target, thread, console)
	adapter.Id = s.threads.Register(adapter)

	s.mu.Lock()
	s.threadsByTarget[form.Actor] = adapter
	s.consolesByActor[form.ConsoleActor] = console
	if s.activeThreadId == 0 {
		s.activeThreadId = adapter.Id
	}
	s.mu.Unlock()

	s.log.Info("Thread started", "threadId", adapter.Id, "name", adapter.Name, "targetType", form.TargetType)

	// The thread-started notification precedes any newSource or stopped event
	// for this thread.
	s.sink().ThreadStarted(adapter.Id, adapter.Name)

	target.SetResourceHandlers(actors.ResourceHandlers{
		Source: func(source actors.SourceForm) {
			s.onNewSource(adapter, source)
		},
		ThreadState: func(state actors.ThreadStateResource) {
			adapter.HandleThreadState(state)
		},
		ConsoleMessage: func(message actors.ConsoleMessageResource) {
			s.onConsoleMessage(adapter, message)
		},
		ErrorMessage: func(message actors.ErrorMessageResource) {
			s.onErrorMessage(message)
		},
	})
}

// onTargetDestroyed tears down the thread adapter of a destroyed target.
// Destruction of an unknown target is logged and ignored.
func (s *Session) onTargetDestroyed(actorName string) {
	s.mu.Lock()
	adapter, found := s.threadsByTarget[actorName]
	if found {
		delete(s.threadsByTarget, actorName)
	}
	s.mu.Unlock()

	if !found {
		s.log.V(1).Info("Ignoring destruction of unknown target", "actor", actorName)
		return
	}

	s.removeThread(adapter)
}

func (s *Session) removeThread(adapter *ThreadAdapter) {
	if !adapter.markExited() {
		return
	}

	s.threads.Unregister(adapter.Id)

	s.mu.Lock()
	if s.activeThreadId == adapter.Id {
		s.activeThreadId = 0
	}
	s.mu.Unlock()

	s.log.Info("Thread exited", "threadId", adapter.Id)
	s.sink().ThreadExited(adapter.Id)
}

// onNewSource registers a source with the source manager, reconciles its
// blackbox state and announces it to the editor.
func (s *Session) onNewSource(thread *ThreadAdapter, form actors.SourceForm) {
	source := s.sources.AddSource(context.Background(), form)

	sourceProxy := actors.NewSource(s.conn, form.Actor, s.log)
	if skip := s.skipFiles.ShouldSkipSource(source); skip != source.Blackboxed {
		// Fire-and-forget: we are on the dispatcher.
		requestType := "unblackbox"
		if skip {
			requestType = "blackbox"
		}
		if blackboxErr := sourceProxy.SendRequestNoReply(requestType, nil); blackboxErr == nil {
			source.Blackboxed = skip
		}
	}

	// Breakpoint installation awaits engine responses; it must not run on the
	// packet dispatcher.
	go func() {
		installCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.breakpoints.OnNewSource(installCtx, source)
	}()

	s.mu.Lock()
	sourceId, known := s.sourceIds[form.Actor]
	if !known {
		sourceId = s.nextSourceId
		s.nextSourceId++
		s.sourceIds[form.Actor] = sourceId
		s.sourceActorsById[sourceId] = form.Actor
	}
	s.mu.Unlock()

	s.sink().NewSource(thread.Id, sourceId, source.URL, source.Path)
}

// onConsoleMessage translates a console-message resource into an output event.
func (s *Session) onConsoleMessage(thread *ThreadAdapter, resource actors.ConsoleMessageResource) {
	arguments := resource.Arguments
	level := resource.Level
	filename := resource.Filename
	line := resource.LineNumber
	column := resource.ColumnNumber
	if resource.Message != nil {
		arguments = resource.Message.Arguments
		level = resource.Message.Level
		filename = resource.Message.Filename
		line = resource.Message.LineNumber
	}

	// console.time produces no output; console.timeEnd reports the elapsed
	// timer as a single message.
	switch level {
	case "time":
		return
	case "timeEnd":
		output := fmt.Sprintf("%s: %gms - timer ended", resource.TimerName, resource.TimerDuration)
		s.emitConsoleOutput(thread, "console", output, 0, filename, line, column)
		return
	}

	category := "console"
	switch level {
	case "error":
		category = "stderr"
	case "warn":
		category = "console"
	}

	output := ""
	variablesReference := 0
	for i, argument := range arguments {
		grip := argument
		if i > 0 {
			output += " "
		}
		output += renderGrip(&grip)
	}
	if len(arguments) == 1 && arguments[0].IsObject() {
		variable := s.variableFromGrip(thread, "", &arguments[0])
		variablesReference = variable.VariablesReference
	}

	s.emitConsoleOutput(thread, category, output, variablesReference, filename, line, column)
}

func (s *Session) emitConsoleOutput(thread *ThreadAdapter, category string, output string, variablesReference int, filename string, line int, column int) {
	var source *OutputSource
	if s.cfg.ShowConsoleCallLocation && filename != "" {
		source = &OutputSource{URL: filename, Line: line, Column: column}
		if path, pathErr := s.sources.URLToPath(filename); pathErr == nil {
			source.Path = path
		}
	}

	s.sink().Output(category, output+"\n", variablesReference, source)
}

// onErrorMessage translates an error-message resource into a stderr output
// event.
func (s *Session) onErrorMessage(resource actors.ErrorMessageResource) {
	pageError := resource.PageError
	if pageError == nil {
		return
	}
	if pageError.Warning {
		s.sink().Output("console", pageError.ErrorMessage+"\n", 0, nil)
		return
	}

	message := pageError.ErrorMessage
	if message == "" && pageError.Exception != nil {
		message = renderGrip(pageError.Exception)
	}
	s.sink().Output("stderr", message+"\n", 0, nil)
}

// LoadSourceById fetches the text of a source the bridge previously announced
// through the custom newSource event.
func (s *Session) LoadSourceById(ctx context.Context, sourceId int) (string, error) {
	s.mu.Lock()
	actorName, found := s.sourceActorsById[sourceId]
	s.mu.Unlock()
	if !found {
		return "", fmt.Errorf("unknown source id %d", sourceId)
	}

	handler := s.conn.GetOrCreate(actorName, func() rdp.Handler {
		return actors.NewSource(s.conn, actorName, s.log)
	})
	sourceProxy, ok := handler.(*actors.Source)
	if !ok {
		return "", fmt.Errorf("actor %s is not a source", actorName)
	}

	grip, loadErr := sourceProxy.LoadSource(ctx)
	if loadErr != nil {
		return "", loadErr
	}

	if grip.Primitive != nil {
		var content string
		if err := json.Unmarshal(grip.Primitive, &content); err != nil {
			return "", err
		}
		return content, nil
	}
	if grip.IsLongString() {
		longString := actors.NewLongStringGrip(s.conn, grip.Actor, grip.Length, s.log)
		defer longString.Dispose()
		return longString.FetchAll(ctx)
	}
	return "", fmt.Errorf("source %d has no retrievable content", sourceId)
}

// FindThread returns the thread adapter with the given id.
func (s *Session) FindThread(threadId int) (*ThreadAdapter, bool) {
	return s.threads.Find(threadId)
}

// AllThreads returns all live thread adapters.
func (s *Session) AllThreads() []*ThreadAdapter {
	var all []*ThreadAdapter
	s.threads.Range(func(_ int, adapter *ThreadAdapter) bool {
		all = append(all, adapter)
		return true
	})
	return all
}

// FindFrame resolves a frame id.
func (s *Session) FindFrame(frameId int) (*FrameAdapter, bool) {
	return s.frames.Find(frameId)
}

// FindVariablesProvider resolves a variables-reference id. Stale ids from a
// finished pause resolve to nothing.
func (s *Session) FindVariablesProvider(variablesReference int) (VariablesProvider, bool) {
	return s.variables.Find(variablesReference)
}

// SetActiveThread records the thread the user last interacted with.
func (s *Session) SetActiveThread(threadId int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.threads.Find(threadId); found {
		s.activeThreadId = threadId
	}
}

// ActiveThread returns the thread REPL evaluations target: the last one the
// user interacted with, or any live thread if that one exited.
func (s *Session) ActiveThread() (*ThreadAdapter, bool) {
	s.mu.Lock()
	activeId := s.activeThreadId
	s.mu.Unlock()

	if adapter, found := s.threads.Find(activeId); found && !adapter.Exited() {
		return adapter, true
	}

	var fallback *ThreadAdapter
	s.threads.Range(func(_ int, adapter *ThreadAdapter) bool {
		if !adapter.Exited() {
			fallback = adapter
			return false
		}
		return true
	})
	return fallback, fallback != nil
}

// SetExceptionBreakpoints configures session-wide exception pausing from the
// editor's filter selection.
func (s *Session) SetExceptionBreakpoints(ctx context.Context, pauseOnAll bool, pauseOnUncaught bool) error {
	descriptorList := s.descriptorSnapshot()
	if len(descriptorList) == 0 {
		return nil
	}

	pause := pauseOnAll || pauseOnUncaught
	ignoreCaught := !pauseOnAll && pauseOnUncaught

	var lastErr error
	for _, descriptor := range descriptorList {
		watcher, watcherErr := descriptor.GetWatcher(ctx)
		if watcherErr != nil {
			lastErr = watcherErr
			continue
		}
		threadConfiguration, configErr := watcher.GetThreadConfiguration(ctx)
		if configErr != nil {
			lastErr = configErr
			continue
		}
		if updateErr := threadConfiguration.Update(ctx, actors.ThreadConfigurationUpdate{
			PauseOnExceptions:      &pause,
			IgnoreCaughtExceptions: &ignoreCaught,
		}); updateErr != nil {
			lastErr = updateErr
		}
	}
	return lastErr
}

func (s *Session) descriptorSnapshot() []*actors.Descriptor {
	var all []*actors.Descriptor
	s.descriptors.Range(func(_ int, descriptor *actors.Descriptor) bool {
		all = append(all, descriptor)
		return true
	})
	return all
}

// onConnectionLost terminates the session when the engine closes the socket.
func (s *Session) onConnectionLost() {
	s.mu.Lock()
	alreadyTerminated := s.terminated
	s.mu.Unlock()
	if alreadyTerminated {
		return
	}

	s.log.Info("Connection to the debug server was lost")
	s.teardown()
	s.sink().Terminated()
	s.swapSink()
}

// Shutdown ends the session: optionally terminates the browser, disconnects
// and cleans up. After Shutdown no further editor events are emitted.
func (s *Session) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if s.cfg.Terminate && !s.cfg.ReAttach {
		s.terminateBrowser(ctx)
	}

	s.teardown()
	s.swapSink()
	s.launcher.Cleanup()
}

// terminateBrowser signals the launched child first; when there is none (or it
// will not die), installing the terminator addon asks the browser to quit
// itself.
func (s *Session) terminateBrowser(ctx context.Context) {
	if s.launcher.Running() && s.launcher.Terminate() {
		return
	}

	s.mu.Lock()
	addonsActor := s.addonsActor
	s.mu.Unlock()
	if addonsActor == "" {
		return
	}

	addons := actors.NewAddons(s.conn, addonsActor, s.log)
	terminatorPath, pathErr := launcher.TerminatorAddonPath()
	if pathErr != nil {
		s.log.Info("Terminator addon unavailable", "error", pathErr.Error())
		return
	}

	installCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, installErr := addons.InstallTemporaryAddon(installCtx, terminatorPath); installErr != nil {
		s.log.Info("Failed to install terminator addon", "error", installErr.Error())
		return
	}

	select {
	case <-s.conn.Done():
	case <-time.After(time.Second):
		s.log.Info("Browser did not quit within the terminate wait")
	}
}

// teardown empties all registries and disconnects. After teardown every
// variables-reference, frame and thread id resolves to nothing.
func (s *Session) teardown() {
	s.mu.Lock()
	s.terminated = true
	s.threadsByTarget = make(map[string]*ThreadAdapter)
	s.consolesByActor = make(map[string]*actors.Console)
	s.sourceIds = make(map[string]int)
	s.sourceActorsById = make(map[int]string)
	s.mu.Unlock()

	s.threads.Range(func(_ int, adapter *ThreadAdapter) bool {
		adapter.markExited()
		return true
	})

	s.threads.Clear()
	s.descriptors.Clear()
	s.frames.Clear()
	s.variables.Clear()
	s.breakpoints.Clear()
	s.sources.Clear()

	if s.conn != nil {
		s.conn.Disconnect()
	}
}

func (s *Session) swapSink() {
	s.mu.Lock()
	s.eventSink = nopSink{}
	s.mu.Unlock()
}

// supportedPlatformVersion checks the engine's platform generation. Watcher
// based discovery and native logpoints landed in generation 68.
func supportedPlatformVersion(platformVersion string) bool {
	if platformVersion == "" {
		return true
	}

	major := platformVersion
	if dot := strings.IndexByte(major, '.'); dot >= 0 {
		major = major[:dot]
	}

	parsed, parseErr := strconv.Atoi(major)
	if parseErr != nil {
		return true
	}
	return parsed >= 68
}

// threadName derives the editor-visible thread title from a target form.
func threadName(form actors.TargetForm) string {
	switch form.TargetType {
	case string(actors.TargetTypeWorker):
		return "Worker " + form.URL
	case string(actors.TargetTypeContentScript):
		return "Content script " + form.URL
	default:
		if form.Title != "" {
			return "Tab: " + form.Title
		}
		return "Tab: " + form.URL
	}
}
