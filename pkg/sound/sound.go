// Package sound plays short wav cues through the speaker.
package sound

import (
	"os"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Cue file locations on the robot.
const (
	Startup  = "/sounds/kiwistart.wav"
	Enabled  = "/sounds/enabled.wav"
	Disabled = "/sounds/disabled.wav"
	Fault    = "/sounds/fault.wav"
)

// Player plays one sound at a time; a new sound cuts off the old one.
type Player struct {
	logger       golog.Logger
	soundsToPlay chan string
	closeOnce    sync.Once
	done         chan struct{}
}

func NewPlayer(logger golog.Logger) *Player {
	p := &Player{
		logger:       logger,
		soundsToPlay: make(chan string),
		done:         make(chan struct{}),
	}
	go p.loop()
	return p
}

// Play queues a sound.  It gives up after a few ms if the player is busy.
func (p *Player) Play(path string) {
	if path == "" {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	select {
	case p.soundsToPlay <- path:
	case <-p.done:
	case <-time.After(10 * time.Millisecond):
		p.logger.Debugw("Timed out trying to play sound", "path", path)
	}
}

func (p *Player) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
}

func (p *Player) loop() {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warnw("Sound player crashed", "panic", r)
		}
	}()
	sampleRate := beep.SampleRate(44100)
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/5)); err != nil {
		p.logger.Warnw("Failed to open speaker; sounds disabled", "error", err)
		p.drain()
		return
	}
	var s beep.StreamSeekCloser
	var ctrl *beep.Ctrl
	defer func() {
		if s != nil {
			s.Close()
		}
	}()
	for {
		var soundToPlay string
		select {
		case <-p.done:
			return
		case soundToPlay = <-p.soundsToPlay:
		}
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		f, err := os.Open(soundToPlay)
		if err != nil {
			p.logger.Warnw("Failed to open sound", "path", soundToPlay, "error", err)
			continue
		}
		s, _, err = wav.Decode(f)
		if err != nil {
			p.logger.Warnw("Failed to decode sound", "path", soundToPlay, "error", err)
			f.Close()
			s = nil
			continue
		}
		ctrl = &beep.Ctrl{Streamer: s}
		speaker.Play(ctrl)
	}
}

func (p *Player) drain() {
	for {
		select {
		case <-p.done:
			return
		case s := <-p.soundsToPlay:
			p.logger.Debugw("Unable to play", "path", s)
		}
	}
}
