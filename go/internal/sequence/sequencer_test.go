package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkarpachev/tvquiz/go/internal/countdown"
	"github.com/nkarpachev/tvquiz/go/internal/media"
	"github.com/nkarpachev/tvquiz/go/internal/session"
)

// journal records cross-component side effects in the order they happen.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	j.entries = append(j.entries, entry)
	j.mu.Unlock()
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) contains(entry string) bool {
	for _, e := range j.snapshot() {
		if e == entry {
			return true
		}
	}
	return false
}

type fakeSpeaker struct {
	journal *journal
	err     error

	blockFirst chan struct{}
	once       sync.Once
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) error {
	if s.blockFirst != nil {
		var first bool
		s.once.Do(func() { first = true; close(s.blockFirst) })
		if first {
			<-ctx.Done()
			return ctx.Err()
		}
	}
	if s.err != nil {
		return s.err
	}
	s.journal.add("speak: " + text)
	return nil
}

func (s *fakeSpeaker) Stop() {}

type fakeMusic struct {
	journal *journal
}

func (m *fakeMusic) Play(ctx context.Context, src string, opts media.PlayOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.journal.add(fmt.Sprintf("play: %s start=%.0f end=%.0f vol=%.1f loop=%t",
		src, opts.StartSeconds, opts.EndSeconds, opts.Volume, opts.Loop))
	if opts.Loop {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (m *fakeMusic) SetVolume(v float64) { m.journal.add(fmt.Sprintf("volume: %.2f", v)) }
func (m *fakeMusic) Stop()               {}

type fakeDisplay struct {
	journal *journal
}

func (d *fakeDisplay) RevealOptions(roundID int) { d.journal.add(fmt.Sprintf("options: %d", roundID)) }
func (d *fakeDisplay) ShowStats(*session.Results) {
	d.journal.add("stats")
}
func (d *fakeDisplay) ShowLeaderboard([]session.Player) {
	d.journal.add("leaderboard")
}

type journalSender struct {
	journal *journal

	mu   sync.Mutex
	sent []any
}

func (s *journalSender) Send(v any) {
	s.mu.Lock()
	s.sent = append(s.sent, v)
	s.mu.Unlock()
	if cmd, ok := v.(session.TimerStartedCommand); ok {
		s.journal.add(fmt.Sprintf("timer_started: %d", cmd.RoundID))
	}
}

func (s *journalSender) timerCommands() []session.TimerStartedCommand {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cmds []session.TimerStartedCommand
	for _, v := range s.sent {
		if cmd, ok := v.(session.TimerStartedCommand); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

type harness struct {
	seq     *Sequencer
	journal *journal
	speaker *fakeSpeaker
	sender  *journalSender
	timer   *countdown.Timer
	clock   *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	j := &journal{}
	fc := clockwork.NewFakeClock()
	speaker := &fakeSpeaker{journal: j}
	sender := &journalSender{journal: j}
	timer := countdown.New(fc, nil)
	seq := New(Config{
		Narrator:        speaker,
		Music:           &fakeMusic{journal: j},
		Clock:           fc,
		Display:         &fakeDisplay{journal: j},
		Timer:           timer,
		Sender:          sender,
		TensionTrackURL: "/audio/tension.mp3",
	})
	return &harness{seq: seq, journal: j, speaker: speaker, sender: sender, timer: timer, clock: fc}
}

// pump drives the fake clock from a side goroutine so stages that sleep on it
// make progress without the test choreographing every waiter.
func (h *harness) pump(t *testing.T) {
	t.Helper()
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				h.clock.Advance(200 * time.Millisecond)
				time.Sleep(time.Millisecond)
			}
		}
	}()
}

func factsRound(id int) *session.Round {
	return &session.Round{
		ID:               id,
		QuestionText:     "Столица Австралии?",
		Options:          []string{"Сидней", "Канберра", "Мельбурн", "Перт"},
		TimeLimitSeconds: 15,
		BlockType:        session.BlockFacts,
		BlockOrder:       1,
	}
}

func TestStandardQuestionNarratesThenArmsTimer(t *testing.T) {
	h := newHarness(t)
	deadline := h.clock.Now().Add(15 * time.Second)

	h.seq.StartQuestion(factsRound(1), &deadline)

	require.Eventually(t, func() bool {
		return h.journal.contains("timer_started: 1")
	}, time.Second, time.Millisecond)

	entries := h.journal.snapshot()
	require.GreaterOrEqual(t, len(entries), 2)
	assert.Contains(t, entries[0], "speak: Столица Австралии?")
	assert.Contains(t, entries[0], "Варианты ответов: Сидней. Канберра. Мельбурн. Перт.")
	assert.Contains(t, entries[0], "Время пошло! У вас 15 секунд.")
	assert.Equal(t, "timer_started: 1", entries[1])
	assert.Equal(t, countdown.PhaseRunning, h.timer.Phase())

	require.Eventually(t, func() bool {
		return h.journal.contains("play: /audio/tension.mp3 start=0 end=0 vol=0.3 loop=true")
	}, time.Second, time.Millisecond)
}

func TestNarrationFailureStillArmsTimer(t *testing.T) {
	h := newHarness(t)
	h.speaker.err = errors.New("provider down")
	deadline := h.clock.Now().Add(20 * time.Second)

	h.seq.StartQuestion(factsRound(3), &deadline)

	require.Eventually(t, func() bool {
		return h.journal.contains("timer_started: 3")
	}, time.Second, time.Millisecond)
	assert.Equal(t, countdown.PhaseRunning, h.timer.Phase())
}

func TestMusicQuestionPlaysClipBeforeOptions(t *testing.T) {
	h := newHarness(t)
	deadline := h.clock.Now().Add(20 * time.Second)
	round := &session.Round{
		ID:               7,
		Options:          []string{"Кино", "Сплин", "Мумий Тролль"},
		TimeLimitSeconds: 20,
		BlockType:        session.BlockMusic,
		SongURL:          "/songs/intro.mp3",
		SongStartSeconds: 45,
		SongEndSeconds:   75,
	}

	h.seq.StartQuestion(round, &deadline)

	require.Eventually(t, func() bool {
		return h.journal.contains("timer_started: 7")
	}, time.Second, time.Millisecond)

	entries := h.journal.snapshot()
	require.Len(t, entries, 4)
	assert.Equal(t, "play: /songs/intro.mp3 start=45 end=75 vol=0.8 loop=false", entries[0])
	assert.Equal(t, "options: 7", entries[1])
	assert.Contains(t, entries[2], "speak: Варианты ответов: Кино. Сплин. Мумий Тролль.")
	assert.Equal(t, "timer_started: 7", entries[3])
}

func TestPhotoGuessNarratesPromptOnly(t *testing.T) {
	h := newHarness(t)
	deadline := h.clock.Now().Add(20 * time.Second)
	round := &session.Round{
		ID:               4,
		QuestionText:     "Кто на фото?",
		Options:          []string{"Олег", "Ирина"},
		TimeLimitSeconds: 20,
		BlockType:        session.BlockPhotoGuess,
	}

	h.seq.StartQuestion(round, &deadline)

	require.Eventually(t, func() bool {
		return h.journal.contains("timer_started: 4")
	}, time.Second, time.Millisecond)

	entries := h.journal.snapshot()
	assert.Contains(t, entries[0], "Кто на фото?")
	assert.Contains(t, entries[0], "Время пошло!")
	assert.NotContains(t, entries[0], "Варианты")
}

func TestSupersededRunSkipsLaterStages(t *testing.T) {
	h := newHarness(t)
	h.speaker.blockFirst = make(chan struct{})
	d1 := h.clock.Now().Add(15 * time.Second)
	d2 := h.clock.Now().Add(30 * time.Second)

	h.seq.StartQuestion(factsRound(1), &d1)
	<-h.speaker.blockFirst

	// A new round mid-narration supersedes the first run entirely.
	h.seq.StartQuestion(factsRound(2), &d2)

	require.Eventually(t, func() bool {
		return h.journal.contains("timer_started: 2")
	}, time.Second, time.Millisecond)

	cmds := h.sender.timerCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, 2, cmds[0].RoundID)
	assert.Equal(t, countdown.PhaseRunning, h.timer.Phase())
	rem, armed := h.timer.Remaining()
	require.True(t, armed)
	assert.Equal(t, 30, rem)
}

func revealResults() *session.Results {
	return &session.Results{
		RoundID:           1,
		Options:           []string{"Сидней", "Канберра"},
		CorrectOption:     1,
		CorrectAnswerText: "Канберра",
		OptionStats:       map[int]int{0: 4, 1: 8},
		TotalAnswers:      12,
		Leaderboard: []session.Player{
			{Name: "Аня", Score: 30},
			{Name: "Борис", Score: 20},
		},
	}
}

func TestRevealShowsStatsThenLeaderboard(t *testing.T) {
	h := newHarness(t)
	h.pump(t)

	h.seq.StartReveal(factsRound(1), revealResults())

	require.Eventually(t, func() bool {
		return h.journal.contains("leaderboard")
	}, 5*time.Second, time.Millisecond)

	entries := h.journal.snapshot()
	assert.Contains(t, entries[0], "speak: Правильный ответ... Канберра!")
	assert.Contains(t, entries, "stats")
	assert.Contains(t, entries, "leaderboard")
	assert.Contains(t, entries, "speak: Лидирует Аня!")
}

func TestRevealTieSkipsLeaderNarration(t *testing.T) {
	h := newHarness(t)
	h.pump(t)

	results := revealResults()
	results.Leaderboard[1].Score = 30
	h.seq.StartReveal(factsRound(1), results)

	require.Eventually(t, func() bool {
		return h.journal.contains("leaderboard")
	}, 5*time.Second, time.Millisecond)

	for _, e := range h.journal.snapshot() {
		assert.NotContains(t, e, "Лидирует")
	}
}

func TestMusicRevealFadesIntoBackgroundLoop(t *testing.T) {
	h := newHarness(t)
	h.pump(t)

	round := &session.Round{
		ID:                 7,
		BlockType:          session.BlockMusic,
		SongURL:            "/songs/intro.mp3",
		RevealStartSeconds: 60,
		RevealEndSeconds:   90,
	}
	results := revealResults()
	results.RoundID = 7

	h.seq.StartReveal(round, results)

	require.Eventually(t, func() bool {
		return h.journal.contains("leaderboard")
	}, 5*time.Second, time.Millisecond)

	entries := h.journal.snapshot()
	assert.Contains(t, entries, "play: /songs/intro.mp3 start=60 end=90 vol=0.8 loop=false")
	assert.Contains(t, entries, "volume: 0.00")
	assert.Contains(t, entries, "play: /songs/intro.mp3 start=60 end=0 vol=0.0 loop=true")
	assert.Contains(t, entries, "volume: 0.30")
}

func TestRevealClearsCountdown(t *testing.T) {
	h := newHarness(t)
	h.pump(t)
	deadline := h.clock.Now().Add(time.Hour)
	h.timer.SetDeadline(deadline)

	h.seq.StartReveal(factsRound(1), revealResults())

	require.Eventually(t, func() bool {
		return h.timer.Phase() == countdown.PhaseIdle
	}, time.Second, time.Millisecond)
}

func TestFinishedNarratesWinner(t *testing.T) {
	h := newHarness(t)

	h.seq.StartFinished([]session.Player{{Name: "Аня", Score: 50}})

	require.Eventually(t, func() bool {
		return h.journal.contains("speak: Игра окончена! Побеждает Аня!")
	}, time.Second, time.Millisecond)
}

func TestSongPushArmsStopCountdown(t *testing.T) {
	h := newHarness(t)
	stop := h.clock.Now().Add(30 * time.Second)

	h.seq.StartSong(session.SongPlayback{URL: "/songs/guess.mp3", StopTS: stop})

	remaining, armed := h.timer.Remaining()
	require.True(t, armed)
	assert.Equal(t, 30, remaining)
	// A song push is not a round: nothing to report back.
	assert.Empty(t, h.sender.timerCommands())

	require.Eventually(t, func() bool {
		return h.journal.contains("play: /songs/guess.mp3 start=0 end=0 vol=0.8 loop=true")
	}, time.Second, time.Millisecond)

	h.seq.Stop()
	_, armed = h.timer.Remaining()
	assert.False(t, armed)
}
