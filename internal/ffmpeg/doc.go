// Package ffmpeg implements the codec and container contracts on top of
// ffmpeg child processes. Each codec instance owns one process fed through
// stdin and drained from stdout:
//
//   - Decoder: H.264 Annex-B or IVF in, raw RGBA frames out.
//   - Encoder: raw RGBA frames in, VP8/VP9 IVF out.
//   - WebMWriter: IVF in, WebM byte stream out (stream copy).
//
// stderr is captured and classified so failures carry a useful reason.
package ffmpeg
