package extractor

const recordResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "project_name": {
      "type": "string",
      "description": "事業名 (official project name)"
    },
    "budget_amount": {
      "type": "integer",
      "minimum": 0,
      "description": "予算額 in yen, no commas or currency symbols"
    },
    "policy_area": {
      "type": "string",
      "description": "施策分野 (policy area category)"
    },
    "description": {
      "type": "string",
      "description": "事業概要 (project summary)"
    },
    "fiscal_year": {
      "type": "integer",
      "description": "年度 as a 4-digit western year"
    },
    "kpi": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "target": {"type": "number"},
          "current": {"type": "number"}
        },
        "required": ["target"]
      }
    }
  },
  "required": ["project_name", "budget_amount", "policy_area", "fiscal_year"],
  "additionalProperties": false
}`

const extractionPrompt = `Extract the budget project described in the given Japanese municipal budget document excerpt and return it as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

` + recordResponseSchema + `

Rules:
- budget_amount must be a plain integer in yen. Remove commas, 円 and any other currency marks.
- project_name must be the official name as written in the document.
- fiscal_year must be a 4-digit western year. Convert era years (令和, 平成) when necessary.
- policy_area must be the single most appropriate category for the project.
- kpi maps each metric name to its target value and, when stated, its current value. Omit the kpi key entirely when the document states no metrics.
- Include only information that appears in the document. Do not hallucinate.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input:
事業名：地域活性化推進事業
予算額：10,000,000円
事業概要：地域コミュニティの活性化を目的とした総合的な支援事業
KPI：地域活動参加者数：年間1000人（令和7年度）
Output:
{
  "project_name": "地域活性化推進事業",
  "budget_amount": 10000000,
  "policy_area": "地域振興",
  "description": "地域コミュニティの活性化を目的とした総合的な支援事業",
  "fiscal_year": 2025,
  "kpi": {
    "地域活動参加者数": {"target": 1000, "current": 0}
  }
}`
