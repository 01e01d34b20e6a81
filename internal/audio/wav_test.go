package audio

import (
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	tests := []struct {
		name       string
		samples    []int16
		sampleRate int
		channels   int
		wantErr    bool
	}{
		{
			name:       "mono window",
			samples:    make([]int16, 160),
			sampleRate: 16000,
			channels:   1,
			wantErr:    false,
		},
		{
			name:       "stereo interleaved",
			samples:    make([]int16, 320),
			sampleRate: 44100,
			channels:   2,
			wantErr:    false,
		},
		{
			name:       "empty samples",
			samples:    nil,
			sampleRate: 16000,
			channels:   1,
			wantErr:    true,
		},
		{
			name:       "zero sample rate",
			samples:    make([]int16, 160),
			sampleRate: 0,
			channels:   1,
			wantErr:    true,
		},
		{
			name:       "zero channels",
			samples:    make([]int16, 160),
			sampleRate: 16000,
			channels:   0,
			wantErr:    true,
		},
		{
			name:       "sample count not divisible by channels",
			samples:    make([]int16, 161),
			sampleRate: 16000,
			channels:   2,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(tt.samples, tt.sampleRate, tt.channels)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeWAV() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			wantSize := 44 + len(tt.samples)*2
			if len(data) != wantSize {
				t.Errorf("encoded size = %d, want %d", len(data), wantSize)
			}
			if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
				t.Errorf("missing RIFF/WAVE magic in header")
			}
		})
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i*137 - 16000)
	}

	data, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV() error = %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV() error = %v", err)
	}
	if rate != 16000 {
		t.Errorf("decoded sample rate = %d, want 16000", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte("RIFF")},
		{name: "wrong magic", data: make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Error("DecodeWAV() expected error, got nil")
			}
		})
	}
}
