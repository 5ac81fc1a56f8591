// Package ffi is the cgo C-ABI export shim for the Engine Facade (C7):
// it is the only package in the module compiled with `import "C"`, and
// every exported function here is a thin, allocation-aware wrapper
// around one pkg/facade.Engine method. No session or engine logic
// lives in this package -- that would duplicate pkg/facade's own
// locking and defeat the point of having a Go-level facade underneath
// a C one.
//
// Grounded on the spec's own §6 function table; the teacher has no
// direct C-ABI analogue, so naming and doc-comment density here follow
// the rest of the module's conventions (terse, one-purpose comments)
// rather than any one teacher file.
package ffi

/*
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"strconv"
	"unsafe"

	"github.com/maidos/ime-engine/pkg/dictionary"
	engerrors "github.com/maidos/ime-engine/pkg/errors"
	"github.com/maidos/ime-engine/pkg/facade"
	"github.com/maidos/ime-engine/pkg/session"
)

// engine is the process-wide Engine every exported function drives.
// The spec's §6 table carries no session/engine handle parameter on
// any function, so the C-ABI surface is deliberately single-engine per
// process -- a host embedding more than one needs more than one
// process, same as the Go facade's own one-Engine-per-struct model.
var engine = facade.New()

// codeOf maps err to its §7 negative status code, or 0 for nil.
func codeOf(err error) int32 {
	if err == nil {
		return 0
	}
	return engerrors.KindOf(err).Code()
}

// writeString copies s as NUL-terminated UTF-8 into buf (bufLen
// bytes). If buf can't hold s plus its terminator, it writes the
// required byte count (ASCII decimal, NUL-terminated, truncated to
// fit) into buf instead and returns BufferTooSmall, per §6's "on
// BufferTooSmall, writes required size" -- reusing the same buffer
// and read-back path rather than a second out-parameter.
func writeString(buf *C.char, bufLen int32, s string) error {
	data := []byte(s)
	needed := len(data) + 1
	if buf == nil || bufLen <= 0 {
		return engerrors.New(engerrors.KindBufferTooSmall, "no destination buffer")
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(bufLen))
	if int(bufLen) < needed {
		writeRequiredSize(dst, needed)
		return engerrors.New(engerrors.KindBufferTooSmall, "buffer too small: need "+strconv.Itoa(needed))
	}
	copy(dst, data)
	dst[len(data)] = 0
	return nil
}

func writeRequiredSize(dst []byte, needed int) {
	s := strconv.Itoa(needed)
	n := copy(dst, s)
	if n < len(dst) {
		dst[n] = 0
	} else {
		dst[len(dst)-1] = 0
	}
}

//export ime_init
func ime_init(configPath *C.char) C.int32_t {
	return C.int32_t(codeOf(engine.Init(C.GoString(configPath))))
}

//export ime_shutdown
func ime_shutdown() {
	engine.Shutdown()
}

//export ime_process_key
func ime_process_key(vkey C.int32_t, modifiers C.uint8_t, compositionBuf *C.char, bufLen C.int32_t) C.int32_t {
	comp, count, err := engine.ProcessKey(session.VKey(rune(vkey)), session.Modifiers(uint8(modifiers)))
	if err != nil {
		return C.int32_t(codeOf(err))
	}
	if err := writeString(compositionBuf, int32(bufLen), comp); err != nil {
		return C.int32_t(codeOf(err))
	}
	return C.int32_t(count)
}

//export ime_get_candidate
func ime_get_candidate(index C.int32_t, candidateBuf *C.char, bufLen C.int32_t) C.int32_t {
	cand, err := engine.GetCandidate(int(index))
	if err != nil {
		return C.int32_t(codeOf(err))
	}
	if err := writeString(candidateBuf, int32(bufLen), cand.Text); err != nil {
		return C.int32_t(codeOf(err))
	}
	return 0
}

//export ime_commit
func ime_commit(index C.int32_t, commitBuf *C.char, bufLen C.int32_t) C.int32_t {
	text, err := engine.Commit(int(index))
	if err != nil {
		return C.int32_t(codeOf(err))
	}
	if err := writeString(commitBuf, int32(bufLen), text); err != nil {
		return C.int32_t(codeOf(err))
	}
	return 0
}

//export ime_cancel
func ime_cancel() C.int32_t {
	return C.int32_t(codeOf(engine.Cancel()))
}

//export ime_get_scheme
func ime_get_scheme() C.int32_t {
	s, err := engine.GetScheme()
	if err != nil {
		return C.int32_t(codeOf(err))
	}
	return C.int32_t(int(s))
}

//export ime_set_scheme
func ime_set_scheme(scheme C.int32_t) C.int32_t {
	return C.int32_t(codeOf(engine.SetScheme(dictionary.Scheme(int(scheme)))))
}

//export ime_reload_dictionaries
func ime_reload_dictionaries(dictDir *C.char) C.int32_t {
	return C.int32_t(codeOf(engine.ReloadDictionaries(C.GoString(dictDir))))
}

//export ime_user_dict_add
func ime_user_dict_add(scheme C.int32_t, key *C.char, value *C.char) C.int32_t {
	err := engine.UserDictAdd(dictionary.Scheme(int(scheme)), C.GoString(key), C.GoString(value), nil)
	return C.int32_t(codeOf(err))
}

//export ime_user_dict_remove
func ime_user_dict_remove(scheme C.int32_t, key *C.char, value *C.char) C.int32_t {
	err := engine.UserDictRemove(dictionary.Scheme(int(scheme)), C.GoString(key), C.GoString(value))
	return C.int32_t(codeOf(err))
}

//export ime_user_dict_export
func ime_user_dict_export(outBuf *C.char, bufLen C.int32_t) C.int32_t {
	data, err := engine.UserDictExport()
	if err != nil {
		return C.int32_t(codeOf(err))
	}
	if err := writeString(outBuf, int32(bufLen), string(data)); err != nil {
		return C.int32_t(codeOf(err))
	}
	return C.int32_t(len(data))
}

//export ime_user_dict_import
func ime_user_dict_import(data *C.char, dataLen C.int32_t) C.int32_t {
	payload := C.GoBytes(unsafe.Pointer(data), C.int(dataLen))
	return C.int32_t(codeOf(engine.UserDictImport(payload)))
}

//export ime_set_llm_enabled
func ime_set_llm_enabled(enabled C.int32_t) C.int32_t {
	return C.int32_t(codeOf(engine.SetLLMEnabled(enabled != 0)))
}

//export ime_set_llm_timeout
func ime_set_llm_timeout(timeoutMs C.int32_t) C.int32_t {
	return C.int32_t(codeOf(engine.SetLLMTimeout(int(timeoutMs))))
}

// ime_health_probe writes the C8 health snapshot as JSON into buf,
// following the same BufferTooSmall convention as every other
// buffer-writing export. Not part of §6's table verbatim -- §4.8 asks
// for "a health probe" without naming its export, so this fills that
// gap in the same idiom as the rest of the C-ABI surface.
//
//export ime_health_probe
func ime_health_probe(buf *C.char, bufLen C.int32_t) C.int32_t {
	snap := engine.Health()
	data, err := json.Marshal(snap)
	if err != nil {
		return C.int32_t(engerrors.KindInternal.Code())
	}
	if err := writeString(buf, int32(bufLen), string(data)); err != nil {
		return C.int32_t(codeOf(err))
	}
	return C.int32_t(len(data))
}

//export ime_get_version
func ime_get_version() *C.char {
	return C.CString(engine.GetVersion())
}

//export ime_free_string
func ime_free_string(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}
