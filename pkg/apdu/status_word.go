package apdu

import (
	"fmt"

	"github.com/cardium/cardium/pkg/bits"
)

// Dynamic Status Word Logic:
//
// While most Status Words (SW) are static 2-byte values (e.g., 0x9000), ISO 7816-4 defines
// specific ranges where the value is dynamic and carries contextual information:
//
// 1. '61XX' (SW1=0x61): Process Completed, Response Available.
//    XX indicates the number of extra bytes available for retrieval (GET RESPONSE).
//
// 2. '6CXX' (SW1=0x6C): Wrong Length.
//    XX indicates the correct expected length (Le) for the command.
//
// 3. '63CX' (Warning): Counter Management.
//    If the upper nibble of SW2 is 'C' (0xC0-0xCF), the lower nibble represents
//    a counter value (e.g., remaining PIN retries).

// StatusWord represents the two-byte status response (SW1-SW2) returned by the smart card.
type StatusWord uint16

// NewStatusWord creates a StatusWord instance from two separate bytes.
func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

// SW1 returns the first byte (high byte) of the status word.
func (sw StatusWord) SW1() byte {
	return byte(sw >> 8)
}

// SW2 returns the second byte (low byte) of the status word.
func (sw StatusWord) SW2() byte {
	return byte(sw)
}

// IsSuccess returns true only for the normal completion status 9000.
// Statuses 61XX signal available data, not completion; use HasMoreData.
func (sw StatusWord) IsSuccess() bool {
	return sw == SW_NO_ERROR
}

// HasMoreData returns true if the card holds response bytes to be
// retrieved with GET RESPONSE (61XX). SW2 is the available count,
// where 0x00 means 256 or more.
func (sw StatusWord) HasMoreData() bool {
	return sw.SW1() == 0x61
}

// IsWrongLength returns true if the card rejected the expected length
// (6CXX). SW2 carries the exact Le to retry with.
func (sw StatusWord) IsWrongLength() bool {
	return sw.SW1() == 0x6C
}

// IsCounter checks if the status carries a retry counter (63CX).
func (sw StatusWord) IsCounter() bool {
	if sw.SW1() != 0x63 {
		return false
	}
	return bits.GetRange(sw.SW2(), 8, 5) == 0x0C
}

// Counter returns the counter value of a 63CX status.
func (sw StatusWord) Counter() byte {
	return bits.GetRange(sw.SW2(), 4, 1)
}

// IsWarning returns true if the status indicates a warning (62XX or 63XX).
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError returns true if the status indicates an execution or checking
// error (64XX to 6FXX).
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// String renders the status as its 4-digit hex form.
func (sw StatusWord) String() string {
	return fmt.Sprintf("%04X", uint16(sw))
}

// Verbose returns a human-readable description of the status word.
// It prioritizes dynamic ISO definitions over the static table.
func (sw StatusWord) Verbose() string {
	sw2 := sw.SW2()

	if sw.HasMoreData() {
		return fmt.Sprintf("Process completed, %d bytes available", sw2)
	}

	if sw.IsWrongLength() {
		return fmt.Sprintf("Wrong length, correct Le is %d", sw2)
	}

	if sw.IsCounter() {
		return fmt.Sprintf("Warning: State changed, counter = %d", sw.Counter())
	}

	if desc, ok := swDescriptions[sw]; ok {
		return fmt.Sprintf("[%04X] %s", uint16(sw), desc)
	}

	return fmt.Sprintf("[%04X] %s", uint16(sw), sw.genericCategoryDescription())
}

// genericCategoryDescription provides a fallback description based on SW1.
func (sw StatusWord) genericCategoryDescription() string {
	switch sw.SW1() {
	case 0x62:
		return "Warning: NV memory unchanged"
	case 0x63:
		return "Warning: NV memory changed"
	case 0x64:
		return "Execution Error: NV memory unchanged"
	case 0x65:
		return "Execution Error: NV memory changed"
	case 0x66:
		return "Execution Error: Security issue"
	case 0x68:
		return "Checking Error: Function not supported"
	case 0x69:
		return "Checking Error: Command not allowed"
	case 0x6A:
		return "Checking Error: Wrong parameters"
	default:
		return "Unknown Status"
	}
}

// Standard Status Word codes defined in ISO/IEC 7816-4.
const (
	SW_NO_ERROR StatusWord = 0x9000

	SW_WARN_NO_INFO          StatusWord = 0x6200
	SW_WARN_DATA_CORRUPTED   StatusWord = 0x6281
	SW_WARN_EOF_REACHED      StatusWord = 0x6282
	SW_WARN_FILE_DEACTIVATED StatusWord = 0x6283
	SW_WARN_FCI_BAD_FORMAT   StatusWord = 0x6284

	SW_WARN_NV_CHANGED_NO_INFO StatusWord = 0x6300
	SW_WARN_FILE_FILLED        StatusWord = 0x6381
	SW_WARN_COUNTER_0          StatusWord = 0x63C0

	SW_ERR_EXEC_NO_INFO       StatusWord = 0x6400
	SW_ERR_NV_CHANGED_NO_INFO StatusWord = 0x6500
	SW_ERR_MEMORY_FAILURE     StatusWord = 0x6581
	SW_ERR_SECURITY_ISSUE     StatusWord = 0x6600

	SW_ERR_WRONG_LENGTH              StatusWord = 0x6700
	SW_ERR_CHECKING_NO_INFO          StatusWord = 0x6800
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP  StatusWord = 0x6881
	SW_ERR_SECURE_MESSAGING_NOT_SUPP StatusWord = 0x6882

	SW_ERR_CMD_NOT_ALLOWED_NO_INFO StatusWord = 0x6900
	SW_ERR_CMD_INCOMPATIBLE_FILE   StatusWord = 0x6981
	SW_ERR_SECURITY_STATUS_NOT_SAT StatusWord = 0x6982
	SW_ERR_AUTH_METHOD_BLOCKED     StatusWord = 0x6983
	SW_ERR_REF_DATA_NOT_USABLE     StatusWord = 0x6984
	SW_ERR_COND_OF_USE_NOT_SAT     StatusWord = 0x6985
	SW_ERR_CMD_NOT_ALLOWED_NO_EF   StatusWord = 0x6986

	SW_ERR_WRONG_PARAMS_NO_INFO  StatusWord = 0x6A00
	SW_ERR_INCORRECT_PARAMS_DATA StatusWord = 0x6A80
	SW_ERR_FUNC_NOT_SUPPORTED    StatusWord = 0x6A81
	SW_ERR_FILE_NOT_FOUND        StatusWord = 0x6A82
	SW_ERR_RECORD_NOT_FOUND      StatusWord = 0x6A83
	SW_ERR_NOT_ENOUGH_MEMORY     StatusWord = 0x6A84
	SW_ERR_INCORRECT_PARAMS_P1P2 StatusWord = 0x6A86
	SW_ERR_REF_DATA_NOT_FOUND    StatusWord = 0x6A88
	SW_ERR_FILE_ALREADY_EXISTS   StatusWord = 0x6A89

	SW_ERR_WRONG_P1P2        StatusWord = 0x6B00
	SW_ERR_INS_INVALID       StatusWord = 0x6D00
	SW_ERR_CLA_NOT_SUPPORTED StatusWord = 0x6E00
	SW_ERR_UNKNOWN           StatusWord = 0x6F00
)

var swDescriptions = map[StatusWord]string{
	SW_NO_ERROR:                      "No error",
	SW_WARN_NO_INFO:                  "Warning: no information given",
	SW_WARN_DATA_CORRUPTED:           "Warning: returned data may be corrupted",
	SW_WARN_EOF_REACHED:              "Warning: end of file reached before reading Le bytes",
	SW_WARN_FILE_DEACTIVATED:         "Warning: selected file deactivated",
	SW_WARN_FCI_BAD_FORMAT:           "Warning: FCI not formatted correctly",
	SW_WARN_NV_CHANGED_NO_INFO:       "Warning: NV memory changed, no information",
	SW_WARN_FILE_FILLED:              "Warning: file filled up by last write",
	SW_ERR_EXEC_NO_INFO:              "Execution error, NV memory unchanged",
	SW_ERR_NV_CHANGED_NO_INFO:        "Execution error, NV memory changed",
	SW_ERR_MEMORY_FAILURE:            "Memory failure",
	SW_ERR_SECURITY_ISSUE:            "Security-related issue",
	SW_ERR_WRONG_LENGTH:              "Wrong length",
	SW_ERR_CHECKING_NO_INFO:          "Functions in CLA not supported",
	SW_ERR_LOGICAL_CHANNEL_NOT_SUPP:  "Logical channel not supported",
	SW_ERR_SECURE_MESSAGING_NOT_SUPP: "Secure messaging not supported",
	SW_ERR_CMD_NOT_ALLOWED_NO_INFO:   "Command not allowed",
	SW_ERR_CMD_INCOMPATIBLE_FILE:     "Command incompatible with file structure",
	SW_ERR_SECURITY_STATUS_NOT_SAT:   "Security status not satisfied",
	SW_ERR_AUTH_METHOD_BLOCKED:       "Authentication method blocked",
	SW_ERR_REF_DATA_NOT_USABLE:       "Referenced data not usable",
	SW_ERR_COND_OF_USE_NOT_SAT:       "Conditions of use not satisfied",
	SW_ERR_CMD_NOT_ALLOWED_NO_EF:     "Command not allowed, no current EF",
	SW_ERR_WRONG_PARAMS_NO_INFO:      "Wrong parameters P1-P2",
	SW_ERR_INCORRECT_PARAMS_DATA:     "Incorrect parameters in the data field",
	SW_ERR_FUNC_NOT_SUPPORTED:        "Function not supported",
	SW_ERR_FILE_NOT_FOUND:            "File or application not found",
	SW_ERR_RECORD_NOT_FOUND:          "Record not found",
	SW_ERR_NOT_ENOUGH_MEMORY:         "Not enough memory space in the file",
	SW_ERR_INCORRECT_PARAMS_P1P2:     "Incorrect parameters P1-P2",
	SW_ERR_REF_DATA_NOT_FOUND:        "Referenced data not found",
	SW_ERR_FILE_ALREADY_EXISTS:       "File already exists",
	SW_ERR_WRONG_P1P2:                "Wrong parameters P1-P2",
	SW_ERR_INS_INVALID:               "Instruction code not supported or invalid",
	SW_ERR_CLA_NOT_SUPPORTED:         "Class not supported",
	SW_ERR_UNKNOWN:                   "No precise diagnosis",
}
