package web

import "html/template"

// indexTemplate is the single-page front-end: a run form on the left, a
// polled status/log panel on the right.
var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>Canvas BulkFlow</title>
    <style>
      :root { --bg: #0f172a; --card: #111827; --accent: #22d3ee; --muted: #94a3b8; --text: #e2e8f0; --border: #1f2937; }
      * { box-sizing: border-box; }
      body { margin: 0; font-family: "Segoe UI", system-ui, sans-serif; color: var(--text); background: var(--bg); min-height: 100vh; }
      .wrap { max-width: 980px; margin: 0 auto; padding: 32px 20px 40px; }
      h1 { margin: 0 0 8px; font-size: 32px; }
      .sub { color: var(--muted); margin-bottom: 20px; }
      .grid { display: grid; grid-template-columns: 1.1fr 0.9fr; gap: 20px; }
      .card { background: var(--card); border: 1px solid var(--border); border-radius: 16px; padding: 18px; }
      .card h2 { margin: 0 0 12px; font-size: 16px; color: var(--accent); text-transform: uppercase; }
      label { display: block; font-weight: 600; margin-bottom: 6px; }
      input[type="text"], input[type="file"] { width: 100%; padding: 10px 12px; border-radius: 10px; border: 1px solid #253041; background: #0b1220; color: var(--text); }
      .row { margin-bottom: 12px; }
      .actions { margin-top: 10px; display: flex; gap: 10px; }
      button { padding: 10px 14px; border-radius: 10px; border: none; background: var(--accent); color: #001018; font-weight: 700; cursor: pointer; }
      button.secondary { background: #334155; color: var(--text); }
      button:disabled { opacity: 0.6; cursor: not-allowed; }
      .status { font-size: 14px; color: var(--muted); margin-bottom: 8px; }
      .bar { width: 100%; height: 14px; background: #0b1220; border-radius: 999px; overflow: hidden; border: 1px solid #243041; }
      .bar > div { height: 100%; width: 0%; background: linear-gradient(90deg, #22d3ee, #38bdf8); }
      pre { background: #0b1220; border: 1px solid #1f2937; padding: 12px; border-radius: 10px; height: 260px; overflow: auto; white-space: pre-wrap; word-break: break-word; }
      @media (max-width: 900px) { .grid { grid-template-columns: 1fr; } }
    </style>
  </head>
  <body>
    <div class="wrap">
      <h1>Canvas BulkFlow</h1>
      <div class="sub">Upload the Ally CSV, then run Download or Upload. OCR runs separately.</div>
      <div class="grid">
        <div class="card">
          <h2>Run</h2>
          <form id="jobForm" enctype="multipart/form-data">
            <div class="row"><label>Ally CSV file</label><input type="file" name="csv_file" accept=".csv" required></div>
            <div class="row"><label>Canvas base URL</label><input type="text" name="base_url" value="{{ .BaseUrl }}"></div>
            <div class="row"><label>Canvas API token</label><input type="text" name="token" value="{{ .Token }}" placeholder="CANVAS_API_TOKEN or paste token"></div>
            <div class="row"><label>Download folder</label><input type="text" name="output_folder" value="{{ .OutputFolder }}"></div>
            <div class="row"><label>OCRed folder</label><input type="text" name="ocr_folder" value="{{ .OcrFolder }}"></div>
            <div class="row"><label>File ID column</label><input type="text" name="file_id_column" value="{{ .FileIdColumn }}"></div>
            <div class="row"><label>Filename column</label><input type="text" name="filename_column" value="{{ .FilenameColumn }}"></div>
            <div class="actions">
              <button type="button" id="downloadBtn">Download PDFs</button>
              <button type="button" id="uploadBtn" class="secondary">Upload OCRed PDFs</button>
            </div>
          </form>
        </div>
        <div class="card">
          <h2>Status</h2>
          <div class="status" id="statusText">Idle</div>
          <div class="bar"><div id="barFill"></div></div>
          <div style="margin-top:10px; font-size:14px; color:var(--muted);">
            Processed: <span id="processed">0</span> / <span id="total">0</span>
          </div>
          <div style="margin-top: 14px; font-weight: 600;">Log</div>
          <pre id="logBox"></pre>
        </div>
      </div>
    </div>
    <script>
      const form = document.getElementById("jobForm");
      const downloadBtn = document.getElementById("downloadBtn");
      const uploadBtn = document.getElementById("uploadBtn");
      const statusText = document.getElementById("statusText");
      const barFill = document.getElementById("barFill");
      const processed = document.getElementById("processed");
      const total = document.getElementById("total");
      const logBox = document.getElementById("logBox");
      let currentJob = null;
      let pollTimer = null;
      let startInFlight = false;

      async function startJob(action) {
        if (currentJob || startInFlight) return;
        startInFlight = true;
        downloadBtn.disabled = true;
        uploadBtn.disabled = true;
        const formData = new FormData(form);
        formData.append("action", action);
        statusText.textContent = "Starting...";
        logBox.textContent = "";
        try {
          const resp = await fetch("/start", { method: "POST", body: formData });
          if (!resp.ok) {
            statusText.textContent = "Failed to start";
            logBox.textContent = await resp.text();
            return;
          }
          const data = await resp.json();
          currentJob = data.job_id;
          startPolling();
        } catch (err) {
          statusText.textContent = "Failed to start";
          logBox.textContent = "Network error while starting job: " + err;
        } finally {
          startInFlight = false;
          if (!currentJob) {
            downloadBtn.disabled = false;
            uploadBtn.disabled = false;
          }
        }
      }

      async function pollStatus() {
        if (!currentJob) return;
        const resp = await fetch("/status/" + currentJob);
        if (!resp.ok) return;
        const data = await resp.json();
        statusText.textContent = data.message || data.status;
        processed.textContent = data.current || 0;
        total.textContent = data.total || 0;
        logBox.textContent = data.log || "";
        let pct = 0;
        if (data.total > 0) pct = Math.min(100, Math.round((data.current / data.total) * 100));
        barFill.style.width = pct + "%";
        if (data.status === "done") stopPolling();
      }

      function startPolling() {
        pollTimer = setInterval(pollStatus, 1000);
        pollStatus();
      }

      function stopPolling() {
        clearInterval(pollTimer);
        pollTimer = null;
        downloadBtn.disabled = false;
        uploadBtn.disabled = false;
        currentJob = null;
      }

      downloadBtn.addEventListener("click", () => startJob("download"));
      uploadBtn.addEventListener("click", () => startJob("upload"));
    </script>
  </body>
</html>
`))

type indexData struct {
	BaseUrl        string
	Token          string
	OutputFolder   string
	OcrFolder      string
	FileIdColumn   string
	FilenameColumn string
}
