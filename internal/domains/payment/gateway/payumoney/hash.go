package payumoney

import (
	"storefront-backend/internal/domains/payment/gateway/signature"
)

// =====================================================
// FORM PARAMETERS
// =====================================================

// FormParams are the hashed fields of a PayU payment form.
type FormParams struct {
	Key         string
	TxnID       string
	Amount      string
	ProductInfo string
	FirstName   string
	Email       string
	Phone       string
	UDF         [5]string

	SURL string
	FURL string
	CURL string
}

// BuildForm returns every field PayU expects, hash included.
func BuildForm(p FormParams, salt string) map[string]string {
	fields := map[string]string{
		"key":         p.Key,
		"txnid":       p.TxnID,
		"amount":      p.Amount,
		"productinfo": p.ProductInfo,
		"firstname":   p.FirstName,
		"email":       p.Email,
		"phone":       p.Phone,
		"udf1":        p.UDF[0],
		"udf2":        p.UDF[1],
		"udf3":        p.UDF[2],
		"udf4":        p.UDF[3],
		"udf5":        p.UDF[4],
		"surl":        p.SURL,
		"furl":        p.FURL,
		"curl":        p.CURL,
	}
	fields["hash"] = RequestHash(fields, salt)
	return fields
}

// =====================================================
// REQUEST HASH
// =====================================================

// RequestHash is
// sha512(key|txnid|amount|productinfo|firstname|email|udf1..udf5||||||salt).
func RequestHash(f map[string]string, salt string) string {
	return signature.SHA512Pipe(
		f["key"], f["txnid"], f["amount"], f["productinfo"], f["firstname"], f["email"],
		f["udf1"], f["udf2"], f["udf3"], f["udf4"], f["udf5"],
		"", "", "", "", "",
		salt,
	)
}

// VerifyRequestHash recomputes the hash of a built form.
func VerifyRequestHash(f map[string]string, salt string) bool {
	return signature.Equal(RequestHash(f, salt), f["hash"])
}

// =====================================================
// RESPONSE (REVERSE) HASH
// =====================================================

// ResponseHash is the reverse-order hash PayU posts back:
// [additionalCharges|]salt|status||||||udf5|udf4|udf3|udf2|udf1|email|firstname|productinfo|amount|txnid|key.
func ResponseHash(f map[string]string, salt string) string {
	seq := make([]string, 0, 18)
	if charges := f["additionalCharges"]; charges != "" {
		seq = append(seq, charges)
	}
	seq = append(seq,
		salt, f["status"],
		"", "", "", "", "",
		f["udf5"], f["udf4"], f["udf3"], f["udf2"], f["udf1"],
		f["email"], f["firstname"], f["productinfo"], f["amount"], f["txnid"], f["key"],
	)
	return signature.SHA512Pipe(seq...)
}

// VerifyResponseHash compares the posted hash to the recomputed reverse hash.
func VerifyResponseHash(f map[string]string, salt string) bool {
	if salt == "" {
		return false
	}
	return signature.Equal(ResponseHash(f, salt), f["hash"])
}

// commandHash signs a merchant postservice call: sha512(key|command|var1|salt).
func commandHash(key, command, var1, salt string) string {
	return signature.SHA512Pipe(key, command, var1, salt)
}
