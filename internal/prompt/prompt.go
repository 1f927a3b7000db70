// Package prompt builds the deterministic prompts for each agent stage. No
// I/O, no state: every function is a pure string builder.
package prompt

import "fmt"

// Cleanup builds the OCR-cleanup prompt: plain text out, all financial
// values preserved, tabular alignment kept.
func Cleanup(rawOCRText string) string {
	return fmt.Sprintf(`You are cleaning up raw OCR output from a bank statement.

ABSOLUTE RULES:
- Preserve every financial value exactly as it appears. Never calculate, round, or infer a number that is not visible.
- Fix obvious OCR character confusions (O/0, l/1, S/5) only in non-numeric text.
- Preserve the original row/column alignment of any tabular section.
- Do not summarize, translate, or omit any line.
- Return plain text only. No markdown, no commentary, no JSON.

RAW OCR TEXT:
%s`, rawOCRText)
}

// Extraction builds the structured-extraction prompt. The flexible-schema
// instruction lets the model record whatever column names the bank actually
// used under schema_info.column_mapping instead of forcing a fixed layout.
func Extraction(cleanedText string) string {
	return fmt.Sprintf(`You are extracting structured data from a cleaned bank statement.

Return a single JSON object with this shape. Every leaf value must be a field
object: {"value": ..., "confidence": 0.0-1.0, "currency": "...", "bbox": [...], "page": N}.
Omit "currency", "bbox", "page" when not applicable.

{
  "account": {"holder_name": FIELD, "account_number": FIELD, "account_type": FIELD},
  "period": {"start_date": FIELD, "end_date": FIELD},
  "bank": {"name": FIELD, "branch": FIELD, "currency": FIELD},
  "balances": {"opening_balance": FIELD, "closing_balance": FIELD, "total_debits": FIELD, "total_credits": FIELD},
  "schema_info": {"column_mapping": {"<bank's own column name>": "<standard field name>"}},
  "transactions": [
    {"date": FIELD, "description": FIELD, "debit": FIELD, "credit": FIELD, "balance": FIELD, "type": FIELD, "reference": FIELD, "raw": {"<original column>": "<original value>"}}
  ]
}

ABSOLUTE RULES:
- FLEXIBLE SCHEMA: detect the bank's actual column names and record the mapping under schema_info.column_mapping. Preserve any column you cannot map under each transaction's "raw" object.
- NEVER CALCULATE a value that is not visible in the source text.
- If a group cannot be found at all, omit it rather than inventing empty fields.
- Return ONLY the JSON object, no surrounding prose.

CLEANED TEXT:
%s`, cleanedText)
}

// Normalization builds the normalization/validation prompt.
func Normalization(extractedJSON string) string {
	return fmt.Sprintf(`You are validating and normalizing extracted bank statement data.

Return JSON: {"normalized_data": <the input tree with dates as YYYY-MM-DD and amounts as plain numbers>, "validation_results": {...}}.

validation_results must include:
- "date_validity": whether every transaction date falls within the statement period, in chronological order.
- "balance_verification": {"matches": bool, "opening": N, "credits": N, "debits": N, "closing": N} checking opening + credits - debits = closing.
- "currency_consistency": whether every amount uses the same currency.
- "running_balance_check": whether each transaction's balance is consistent with the prior balance plus its debit/credit.
- "issues": a free-form list of strings describing anything suspicious.
- "overall_confidence": a number in [0,1] summarizing how trustworthy this extraction is.

ABSOLUTE RULES:
- Do not invent transactions or values that are not present in the input.
- A balance mismatch is advisory: report it in issues, never drop data because of it.
- Return ONLY the JSON object.

EXTRACTED DATA:
%s`, extractedJSON)
}

// Classification builds the document-type classification prompt. The
// bank-statement pipeline does not call it.
func Classification(cleanedText string) string {
	return fmt.Sprintf(`Classify this document's type.

Return JSON: {"document_type": "bank_statement" | "invoice" | "receipt" | "generic", "confidence": 0.0-1.0, "reasoning": "..."}.

Return ONLY the JSON object.

TEXT:
%s`, cleanedText)
}
